package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/renandw/anesthesiaReports-sub000/internal/config"
	"github.com/renandw/anesthesiaReports-sub000/internal/dedup"
	"github.com/renandw/anesthesiaReports-sub000/internal/platform/auth"
	"github.com/renandw/anesthesiaReports-sub000/internal/registry"
)

func newClient(cfg *config.Config) (*registry.Client, error) {
	return registry.New(registry.Config{
		BaseURL:           cfg.RegistryURL,
		Tokens:            auth.StaticToken(cfg.RegistryToken),
		Timeout:           cfg.RegistryTimeout,
		RequestsPerSecond: cfg.RegistryRPS,
		Burst:             cfg.RegistryBurst,
		Logger:            newLogger(cfg),
	})
}

func patientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patient",
		Short: "Register patients",
	}

	var form dedup.PatientForm
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Register a patient, resolving duplicates interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(config.RoleClient)
			if err != nil {
				return err
			}
			client, err := newClient(cfg)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			w := dedup.NewPatientWorkflow(client.Patients(), dedup.PatientConfig{Logger: &logger})
			decider, err := cliDecider[dedup.PatientDraft, dedup.PatientCandidate](cmd)
			if err != nil {
				return err
			}
			p, err := w.RunWith(cmd.Context(), form, dedup.RunOptions[dedup.PatientDraft, dedup.PatientCandidate, dedup.Patient]{Decider: decider})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), p)
		},
	}
	createCmd.Flags().StringVar(&form.Name, "name", "", "Full name")
	createCmd.Flags().StringVar(&form.Sex, "sex", "", "Sex (m/f)")
	createCmd.Flags().StringVar(&form.DateOfBirth, "birth-date", "", "Birth date (YYYY-MM-DD)")
	createCmd.Flags().StringVar(&form.CNS, "cns", "", "CNS card number (15 digits)")
	addDecisionFlag(createCmd)

	cmd.AddCommand(createCmd)
	return cmd
}

func surgeryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "surgery",
		Short: "Register surgeries",
	}

	var form dedup.SurgeryForm
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Register a surgery, resolving duplicates interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(config.RoleClient)
			if err != nil {
				return err
			}
			client, err := newClient(cfg)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			w := dedup.NewSurgeryWorkflow(client.Surgeries(), dedup.SurgeryConfig{Logger: &logger})
			decider, err := cliDecider[dedup.SurgeryDraft, dedup.SurgeryCandidate](cmd)
			if err != nil {
				return err
			}
			s, err := w.RunWith(cmd.Context(), form, dedup.RunOptions[dedup.SurgeryDraft, dedup.SurgeryCandidate, dedup.Surgery]{Decider: decider})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s)
		},
	}
	createCmd.Flags().StringVar(&form.PatientID, "patient", "", "Patient id")
	createCmd.Flags().StringVar(&form.Date, "date", "", "Surgery date (YYYY-MM-DD)")
	createCmd.Flags().StringVar(&form.Type, "type", "", "insurance or public")
	createCmd.Flags().StringVar(&form.InsuranceName, "insurance", "", "Insurer, for insurance surgeries")
	createCmd.Flags().StringVar(&form.Hospital, "hospital", "", "Hospital")
	createCmd.Flags().StringVar(&form.MainSurgeon, "surgeon", "", "Main surgeon")
	createCmd.Flags().StringVar(&form.ProposedProcedure, "procedure", "", "Proposed procedure")
	addDecisionFlag(createCmd)

	cmd.AddCommand(createCmd)
	return cmd
}

func addDecisionFlag(cmd *cobra.Command) {
	cmd.Flags().String("decision", "", `Answer without prompting: "create confirm", "adopt <id>" or "update <id>"`)
}

// cliDecider answers from --decision when given and prompts otherwise.
func cliDecider[D any, C candidateLine](cmd *cobra.Command) (dedup.Decider[D, C], error) {
	if d, _ := cmd.Flags().GetString("decision"); d != "" {
		intent, err := parseDecision(d, nil)
		if err != nil {
			return nil, err
		}
		return dedup.FixedDecider[D, C](intent), nil
	}
	return promptDecider[D, C](os.Stdin, cmd.ErrOrStderr()), nil
}

type candidateLine interface {
	dedup.Candidate
	fmt.Stringer
}

// promptDecider lists the candidates and reads one answer per line until
// a valid one is given. EOF or "quit" means no decision. A bare "create"
// is confirmed with a second question before it becomes an intent.
func promptDecider[D any, C candidateLine](in io.Reader, out io.Writer) dedup.Decider[D, C] {
	lines := bufio.NewScanner(in)
	readLine := func(ctx context.Context, prompt string) (string, error) {
		fmt.Fprint(out, prompt)
		scanned := make(chan bool, 1)
		go func() { scanned <- lines.Scan() }()
		select {
		case <-ctx.Done():
			return "", context.Cause(ctx)
		case ok := <-scanned:
			if !ok {
				return "", dedup.ErrNoDecision
			}
			return lines.Text(), nil
		}
	}
	return func(ctx context.Context, d dedup.Decision[D, C]) (dedup.Intent, error) {
		fmt.Fprintf(out, "Possible duplicates for this %s:\n", d.Kind)
		ids := make([]string, len(d.Candidates))
		for i, c := range d.Candidates {
			ids[i] = c.CandidateID()
			fmt.Fprintf(out, "  %d) %s\n", i+1, c)
		}

		for {
			line, err := readLine(ctx, "create | adopt N | update N | quit > ")
			if err != nil {
				return dedup.Intent{}, err
			}
			intent, err := parseDecision(line, ids)
			if errors.Is(err, dedup.ErrNoDecision) {
				return dedup.Intent{}, err
			}
			if err != nil {
				fmt.Fprintln(out, err)
				continue
			}
			if intent.Action != dedup.ActionCreateNew || intent.ConfirmDuplicate {
				return intent, nil
			}
			answer, err := readLine(ctx, "Create a new record that may duplicate one above? [y/N] > ")
			if err != nil {
				return dedup.Intent{}, err
			}
			if a := strings.ToLower(strings.TrimSpace(answer)); a == "y" || a == "yes" {
				return dedup.CreateAnyway(), nil
			}
			fmt.Fprintln(out, "not created")
		}
	}
}

// parseDecision reads "create", "create confirm", "adopt <ref>",
// "update <ref>" or "quit". Only "create confirm" yields a confirmed create. A
// numeric ref selects from ids by position; anything else is taken as an id.
func parseDecision(line string, ids []string) (dedup.Intent, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return dedup.Intent{}, fmt.Errorf("empty answer")
	}
	if f := strings.ToLower(fields[0]); f == "quit" || f == "q" {
		return dedup.Intent{}, dedup.ErrNoDecision
	}
	action, err := dedup.ParseAction(fields[0])
	if err != nil {
		return dedup.Intent{}, err
	}
	if action == dedup.ActionCreateNew {
		switch {
		case len(fields) == 1:
			return dedup.Intent{Action: dedup.ActionCreateNew}, nil
		case len(fields) == 2 && strings.EqualFold(fields[1], "confirm"):
			return dedup.CreateAnyway(), nil
		default:
			return dedup.Intent{}, fmt.Errorf(`create takes no candidate; use "create confirm" to skip the question`)
		}
	}
	if len(fields) != 2 {
		return dedup.Intent{}, fmt.Errorf("%s needs a candidate", action)
	}
	id := fields[1]
	if n, err := strconv.Atoi(id); err == nil && len(ids) > 0 {
		if n < 1 || n > len(ids) {
			return dedup.Intent{}, fmt.Errorf("choose a candidate between 1 and %d", len(ids))
		}
		id = ids[n-1]
	}
	if action == dedup.ActionAdoptExisting {
		return dedup.AdoptExisting(id), nil
	}
	return dedup.AdoptAndUpdate(id), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
