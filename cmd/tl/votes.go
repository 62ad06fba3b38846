package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/threadlive/internal/client"
	"github.com/alfredjeanlab/threadlive/internal/model"
	"github.com/alfredjeanlab/threadlive/internal/vote"
)

func parseSubject(s string) (model.SubjectType, error) {
	typ := model.SubjectType(s)
	if !typ.IsValid() {
		return "", fmt.Errorf("invalid subject type %q (must be question or answer)", s)
	}
	return typ, nil
}

var voteCmd = &cobra.Command{
	Use:     "vote <question|answer> <id> <up|down>",
	Short:   "Vote on a question or answer (repeat to retract)",
	GroupID: "threads",
	Args:    cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, err := parseSubject(args[0])
		if err != nil {
			return err
		}
		id, err := parseID(args[1], "subject id")
		if err != nil {
			return err
		}
		var value int
		switch args[2] {
		case "up", "+1", "1":
			value = 1
		case "down", "-1":
			value = -1
		default:
			return fmt.Errorf("invalid vote %q (must be up or down)", args[2])
		}

		res, err := api.CastVote(context.Background(), vote.CastVoteRequest{SubjectType: typ, SubjectID: id, Value: value})
		if err != nil {
			return fmt.Errorf("voting: %w", err)
		}
		if jsonOutput {
			return printJSON(res)
		}
		fmt.Printf("Vote %s on %s %d: +%d/-%d (score %d)\n", res.Action, typ, id, res.Counts.Up, res.Counts.Down, res.Counts.Score())
		return nil
	},
}

var votesCmd = &cobra.Command{
	Use:     "votes <question|answer> <id>",
	Short:   "Show vote totals for a question or answer",
	GroupID: "threads",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, err := parseSubject(args[0])
		if err != nil {
			return err
		}
		id, err := parseID(args[1], "subject id")
		if err != nil {
			return err
		}
		sum, err := api.Votes(context.Background(), typ, id)
		if err != nil {
			return fmt.Errorf("reading votes: %w", err)
		}
		if jsonOutput {
			return printJSON(sum)
		}
		fmt.Printf("%s %d: +%d/-%d (score %d)\n", typ, id, sum.VotesUp, sum.VotesDown, sum.Score)
		if sum.UserVote != nil && *sum.UserVote != 0 {
			fmt.Printf("Your vote: %+d\n", *sum.UserVote)
		}
		return nil
	},
}

var bestCmd = &cobra.Command{
	Use:     "best <answer-id>",
	Short:   "Mark an answer as the best answer to its question",
	GroupID: "threads",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "answer id")
		if err != nil {
			return err
		}
		res, err := api.MarkBest(context.Background(), id)
		if err != nil {
			return fmt.Errorf("marking best answer: %w", err)
		}
		if jsonOutput {
			return printJSON(res)
		}
		fmt.Printf("Answer %d is now the best answer to question %d\n", res.AnswerID, res.QuestionID)
		if res.PreviousAnswerID != 0 && res.PreviousAnswerID != res.AnswerID {
			fmt.Printf("(replaces answer %d)\n", res.PreviousAnswerID)
		}
		return nil
	},
}

var moderateCmd = &cobra.Command{
	Use:     "moderate <question|answer> <id> <publish|unpublish|trash>",
	Short:   "Change the visibility of a question or answer",
	GroupID: "threads",
	Args:    cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, err := parseSubject(args[0])
		if err != nil {
			return err
		}
		id, err := parseID(args[1], "subject id")
		if err != nil {
			return err
		}
		reason, _ := cmd.Flags().GetString("reason")
		env, err := api.Moderate(context.Background(), client.ModerateRequest{
			SubjectType: typ,
			SubjectID:   id,
			Action:      model.ModerationAction(args[2]),
			Reason:      reason,
		})
		if err != nil {
			return fmt.Errorf("moderating: %w", err)
		}
		if jsonOutput {
			return printJSON(env)
		}
		fmt.Println(describeEnvelope(*env))
		return nil
	},
}

func init() {
	moderateCmd.Flags().String("reason", "", "reason recorded with the action")
}
