package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/threadlive/internal/client"
	"github.com/alfredjeanlab/threadlive/internal/model"
	"github.com/alfredjeanlab/threadlive/internal/ui"
)

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// describeEnvelope renders the payload of env as a short human summary.
func describeEnvelope(env model.Envelope) string {
	p, err := env.Decode()
	if err != nil {
		return string(env.Data)
	}
	switch p := p.(type) {
	case model.NewAnswerPayload:
		return fmt.Sprintf("answer #%d by user %d: %s", p.AnswerID, p.AuthorID, p.Excerpt)
	case model.VotePayload:
		return fmt.Sprintf("%s #%d now +%d/-%d", p.SubjectType, p.SubjectID, p.VotesUp, p.VotesDown)
	case model.QuestionUpdatePayload:
		return fmt.Sprintf("question updated (%s)", strings.Join(p.Fields, ", "))
	case model.ModerationPayload:
		return fmt.Sprintf("%s #%d %s", p.SubjectType, p.SubjectID, p.Action)
	case model.BestAnswerPayload:
		if p.PreviousAnswerID != 0 {
			return fmt.Sprintf("answer #%d marked best (was #%d)", p.AnswerID, p.PreviousAnswerID)
		}
		return fmt.Sprintf("answer #%d marked best", p.AnswerID)
	}
	return string(env.Data)
}

// printEnvelopeLine writes one watch/poll line for env.
func printEnvelopeLine(w io.Writer, env model.Envelope) {
	ts := time.Unix(env.Timestamp, 0).Format("15:04:05")
	fmt.Fprintf(w, "%s  %s  %s\n", ui.RenderMuted(ts), ui.RenderEvent(string(env.Event)), describeEnvelope(env))
}

func printBatch(b *client.Batch, cur model.Cursor) error {
	if jsonOutput {
		return printJSON(b)
	}
	if len(b.Events) == 0 {
		fmt.Println("No new events.")
	}
	for _, env := range b.Events {
		printEnvelopeLine(os.Stdout, env)
	}
	fmt.Println(ui.RenderMuted(fmt.Sprintf("cursor: %d", nextCursor(cur, b))))
	return nil
}

// nextCursor is the cursor to pass to the next poll after b.
func nextCursor(cur model.Cursor, b *client.Batch) model.Cursor {
	for _, env := range b.Events {
		if !env.Event.IsMarker() {
			cur = cur.Advance(env.Timestamp)
		}
	}
	return cur
}

func printViewers(resp *client.ViewersResponse) error {
	if jsonOutput {
		return printJSON(resp)
	}
	if len(resp.Viewers) == 0 {
		fmt.Printf("No one is watching thread %d.\n", resp.ThreadID)
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VIEWER\tUSER\tTRANSPORT\tIDLE\tREQUESTS\tSTREAMS")
	for _, v := range resp.Viewers {
		user := "-"
		if v.UserID > 0 {
			user = fmt.Sprint(v.UserID)
		}
		idle := (time.Duration(v.IdleSecs) * time.Second).String()
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n", v.Viewer, user, v.Transport, idle, v.Requests, v.OpenStreams)
	}
	return w.Flush()
}

func printStats(stats *model.EventStats) error {
	if jsonOutput {
		return printJSON(stats)
	}
	fmt.Printf("Events since %s: %d\n", time.Unix(stats.Since, 0).UTC().Format("2006-01-02"), stats.Total)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nTYPE\tCOUNT")
	for typ, n := range stats.ByType {
		fmt.Fprintf(w, "%s\t%d\n", ui.RenderEvent(typ), n)
	}
	fmt.Fprintln(w, "\nDAY\tCOUNT")
	for _, d := range stats.ByDay {
		fmt.Fprintf(w, "%s\t%d\n", d.Day, d.Count)
	}
	if len(stats.TopThreads) > 0 {
		fmt.Fprintln(w, "\nTHREAD\tEVENTS\tTITLE")
		for _, t := range stats.TopThreads {
			fmt.Fprintf(w, "%d\t%d\t%s\n", t.ThreadID, t.Count, t.Title)
		}
	}
	return w.Flush()
}

