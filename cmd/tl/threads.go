package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/threadlive/internal/model"
)

func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", what, s)
	}
	return id, nil
}

func printQuestion(q *model.Question) error {
	if jsonOutput {
		return printJSON(q)
	}
	fmt.Printf("ID:         %d\n", q.ID)
	fmt.Printf("Title:      %s\n", q.Title)
	fmt.Printf("Author:     %d\n", q.AuthorID)
	fmt.Printf("Votes:      +%d/-%d\n", q.VotesUp, q.VotesDown)
	fmt.Printf("State:      %s\n", q.State)
	if !q.CreatedAt.IsZero() {
		fmt.Printf("Created At: %s\n", q.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

var questionCmd = &cobra.Command{
	Use:     "question",
	Short:   "Create and edit questions",
	GroupID: "threads",
}

var questionCreateCmd = &cobra.Command{
	Use:   "create <title...>",
	Short: "Ask a question (starts a thread)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := api.CreateQuestion(context.Background(), strings.Join(args, " "))
		if err != nil {
			return fmt.Errorf("creating question: %w", err)
		}
		return printQuestion(q)
	},
}

var questionEditCmd = &cobra.Command{
	Use:   "edit <id> <title...>",
	Short: "Change a question's title",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "question id")
		if err != nil {
			return err
		}
		q, err := api.UpdateQuestion(context.Background(), id, strings.Join(args[1:], " "))
		if err != nil {
			return fmt.Errorf("updating question: %w", err)
		}
		return printQuestion(q)
	},
}

var answerCmd = &cobra.Command{
	Use:     "answer <question-id> <body...>",
	Short:   "Post an answer to a question",
	GroupID: "threads",
	Args:    cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		qid, err := parseID(args[0], "question id")
		if err != nil {
			return err
		}
		a, err := api.SubmitAnswer(context.Background(), qid, strings.Join(args[1:], " "))
		if err != nil {
			return fmt.Errorf("submitting answer: %w", err)
		}
		if jsonOutput {
			return printJSON(a)
		}
		fmt.Printf("Posted answer %d to question %d\n", a.ID, a.QuestionID)
		return nil
	},
}

func init() {
	questionCmd.AddCommand(questionCreateCmd)
	questionCmd.AddCommand(questionEditCmd)
}
