package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pavelanni/olympiad/internal/attempt"
	"github.com/pavelanni/olympiad/internal/client"
	"github.com/pavelanni/olympiad/internal/grading"
	appI18n "github.com/pavelanni/olympiad/internal/i18n"
	"github.com/pavelanni/olympiad/internal/model"
)

func takeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "take <slug>",
		Short: "Take an exam in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE:  runTake,
	}
	f := cmd.Flags()
	f.StringP("server", "s", "http://localhost:8080", "Exam server base URL")
	f.StringP("username", "u", "", "Username")
	f.String("password", "", "Password (or set OLYMPIAD_PASSWORD)")
	f.Duration("timeout", 30*time.Second, "Per-request timeout")
	f.StringP("lang", "l", "en", "Message language (en, vi)")
	f.String("log-level", "warn", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func runTake(cmd *cobra.Command, args []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	ctx := appI18n.WithLocalizer(cmd.Context(), appI18n.NewLocalizer(lang))

	username, password := v.GetString("username"), v.GetString("password")
	if username == "" || password == "" {
		return errors.New("username and password are required: set --username/--password or OLYMPIAD_USERNAME/OLYMPIAD_PASSWORD")
	}

	timeout := v.GetDuration("timeout")
	c := client.New(v.GetString("server"), "", timeout)
	login, err := c.Login(ctx, username, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	c = c.WithToken(login.Token)

	pe, err := c.ExamBySlug(ctx, args[0])
	if err != nil {
		return fmt.Errorf("load exam: %w", err)
	}

	t := newTerminal(cmd.InOrStdin(), cmd.OutOrStdout())
	return t.take(ctx, c, pe, timeout)
}

var (
	titleColor = color.New(color.FgCyan, color.Bold)
	timerColor = color.New(color.FgYellow)
	okColor    = color.New(color.FgGreen)
	badColor   = color.New(color.FgRed)
	dimColor   = color.New(color.Faint)
)

// terminal runs one attempt against stdin and stdout.
type terminal struct {
	lines <-chan string
	out   io.Writer
}

func newTerminal(in io.Reader, out io.Writer) *terminal {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	return &terminal{lines: lines, out: out}
}

func (t *terminal) take(ctx context.Context, submitter attempt.Submitter, pe *model.PublicExam, timeout time.Duration) error {
	autoFailed := make(chan error, 1)
	sess := attempt.New(*pe, submitter,
		attempt.WithSubmitTimeout(timeout),
		attempt.WithTickHandler(func(remaining int64) {
			switch {
			case remaining == 0:
				timerColor.Fprintln(t.out, appI18n.T(ctx, "TimeUp"))
			case remaining%60 == 0 || remaining <= 10:
				timerColor.Fprintln(t.out, appI18n.Td(ctx, "TimeLeft", map[string]any{"Time": clock(remaining)}))
			}
		}),
		attempt.WithAutoSubmitHandler(func(_ *model.ExamResult, err error) {
			if err != nil {
				autoFailed <- err
			}
		}),
	)

	titleColor.Fprintf(t.out, "%s\n", pe.Title)
	fmt.Fprintf(t.out, "%s · %d min · %d\n\n", pe.Category, pe.DurationMinutes, len(pe.Questions))
	if err := sess.Start(ctx); err != nil {
		return err
	}

	timeUp := false
	var autoErr error
questions:
	for i, q := range pe.Questions {
		t.printQuestion(i, len(pe.Questions), q)
		for {
			select {
			case line, ok := <-t.lines:
				if !ok {
					break questions
				}
				value, err := parseAnswer(q, line)
				if err != nil {
					badColor.Fprintln(t.out, err)
					continue
				}
				if value != "" {
					if err := sess.Answer(q.ID, value); errors.Is(err, attempt.ErrLocked) {
						timeUp = true
						break questions
					}
				}
				continue questions
			case <-sess.Done():
				timeUp = true
				break questions
			case autoErr = <-autoFailed:
				timeUp = true
				break questions
			}
		}
	}

	var res *model.ExamResult
	var err error
	switch {
	case autoErr != nil:
		err = autoErr
	case timeUp:
		res, err = awaitAutoSubmit(sess, autoFailed)
	default:
		fmt.Fprintln(t.out, appI18n.T(ctx, "Submitting"))
		res, err = sess.Submit(ctx)
		if errors.Is(err, attempt.ErrAlreadySubmitted) {
			res, err = awaitAutoSubmit(sess, autoFailed)
		}
	}

	for err != nil {
		badColor.Fprintln(t.out, appI18n.Td(ctx, "SubmitFailed", map[string]any{"Error": err}))
		fmt.Fprintln(t.out, appI18n.T(ctx, "RetryPrompt"))
		if _, ok := <-t.lines; !ok {
			return fmt.Errorf("submission not sent: %w", err)
		}
		res, err = sess.Retry(ctx)
		if errors.Is(err, attempt.ErrNothingToRetry) {
			return err
		}
	}

	t.printResult(ctx, pe, res)
	return nil
}

// awaitAutoSubmit waits for the timer-driven submission to finish.
func awaitAutoSubmit(sess *attempt.Session, autoFailed <-chan error) (*model.ExamResult, error) {
	select {
	case <-sess.Done():
		return sess.Result(), nil
	case err := <-autoFailed:
		return nil, err
	}
}

func (t *terminal) printQuestion(i, total int, q model.PublicQuestion) {
	titleColor.Fprintf(t.out, "[%d/%d] ", i+1, total)
	fmt.Fprintln(t.out, q.Body)
	switch q.Kind {
	case model.KindSingleChoice:
		for j, opt := range q.Options {
			fmt.Fprintf(t.out, "  %d) %s\n", j+1, opt)
		}
	case model.KindTrueFalse:
		for j, st := range q.Statements {
			fmt.Fprintf(t.out, "  %c) %s\n", 'a'+j, st)
		}
		dimColor.Fprintln(t.out, "  (T/F for each, e.g. TFFT)")
	}
	fmt.Fprint(t.out, "> ")
}

func (t *terminal) printResult(ctx context.Context, pe *model.PublicExam, res *model.ExamResult) {
	fmt.Fprintln(t.out)
	titleColor.Fprintln(t.out, appI18n.Td(ctx, "ScoreLine", map[string]any{
		"Score":   strconv.FormatFloat(res.Score, 'f', 2, 64),
		"Correct": res.CorrectAnswersCount,
		"Total":   res.TotalQuestions,
	}))

	bodies := make(map[string]string, len(pe.Questions))
	for _, q := range pe.Questions {
		bodies[q.ID] = q.Body
	}
	for i, a := range res.Answers {
		mark, c := "✓", okColor
		if !a.IsCorrect {
			mark, c = "✗", badColor
		}
		c.Fprintf(t.out, "%s %d. ", mark, i+1)
		fmt.Fprintln(t.out, bodies[a.QuestionID])
		if !a.IsCorrect {
			fmt.Fprintf(t.out, "    %q -> %s\n", a.UserAnswer, a.CorrectAnswer)
		}
		if a.Explanation != "" {
			dimColor.Fprintf(t.out, "    %s\n", a.Explanation)
		}
	}
}

// parseAnswer turns a typed line into the answer text the server grades.
// An empty line skips the question.
func parseAnswer(q model.PublicQuestion, line string) (string, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", nil
	}
	switch q.Kind {
	case model.KindSingleChoice:
		if n, err := strconv.Atoi(line); err == nil {
			if n < 1 || n > len(q.Options) {
				return "", fmt.Errorf("choose 1-%d", len(q.Options))
			}
			return q.Options[n-1], nil
		}
		return line, nil
	case model.KindTrueFalse:
		var flags [model.TrueFalseStatements]bool
		n := 0
		for _, r := range strings.ToUpper(line) {
			var v bool
			switch r {
			case 'T', 'Đ', '1':
				v = true
			case 'F', 'S', '0':
			case ' ', ',':
				continue
			default:
				return "", fmt.Errorf("unexpected %q, use T or F", r)
			}
			if n == len(flags) {
				return "", fmt.Errorf("expected %d answers", len(flags))
			}
			flags[n] = v
			n++
		}
		if n != len(flags) {
			return "", fmt.Errorf("expected %d answers", len(flags))
		}
		return grading.FormatStatements(flags), nil
	default:
		return line, nil
	}
}

func clock(seconds int64) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
