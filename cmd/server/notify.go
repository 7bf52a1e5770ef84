package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/insurai/compliance-engine/internal/compliance"
	"github.com/insurai/compliance-engine/internal/notification"
	"github.com/insurai/compliance-engine/internal/scheduler"
)

type previewOptions struct {
	issueType   string
	severity    string
	title       string
	description string
	location    string
	action      string
	recipient   string
	format      string
}

func notifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Render compliance notifications",
	}

	var opts previewOptions
	preview := &cobra.Command{
		Use:   "preview",
		Short: "Render the notification, toast and email for an issue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreview(cmd.OutOrStdout(), opts)
		},
	}
	preview.Flags().StringVar(&opts.issueType, "type", "", "Issue type (missing-clause, high-risk, general-concern, recommendation)")
	preview.Flags().StringVar(&opts.severity, "severity", "", "Severity (low, medium, high, critical)")
	preview.Flags().StringVar(&opts.title, "title", "", "Issue title")
	preview.Flags().StringVar(&opts.description, "description", "", "Issue description")
	preview.Flags().StringVar(&opts.location, "location", "", "Where the issue was found")
	preview.Flags().StringVar(&opts.action, "action", "", "Explicit action (submit-to-hr, review-required, immediate-action, informational)")
	preview.Flags().StringVar(&opts.recipient, "recipient", "HR Team", "Email recipient name")
	preview.Flags().StringVarP(&opts.format, "output", "o", "text", "Output format (text, json)")
	_ = preview.MarkFlagRequired("type")
	_ = preview.MarkFlagRequired("severity")
	_ = preview.MarkFlagRequired("title")

	cmd.AddCommand(preview)
	return cmd
}

func runPreview(out io.Writer, opts previewOptions) error {
	issueType, err := compliance.ParseIssueType(opts.issueType)
	if err != nil {
		return err
	}
	severity, err := compliance.ParseSeverity(opts.severity)
	if err != nil {
		return err
	}
	action, err := notification.ParseAction(opts.action)
	if err != nil {
		return err
	}

	issue := notification.Issue{
		Type:           issueType,
		Severity:       severity,
		Title:          opts.title,
		Description:    opts.description,
		Location:       opts.location,
		ActionRequired: action,
	}
	if err := issue.Validate(); err != nil {
		return err
	}

	n := notification.Classify(issue)
	toast := notification.Toast(issue)
	email := notification.Email(issue, opts.recipient)

	switch opts.format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"notification": n,
			"toast":        toast,
			"email":        email,
		})
	case "text":
		_, err := fmt.Fprintf(out, "[%s] %s\n%s\n%s\n\nToast: %s\n\n--- Email ---\n%s\n",
			n.Icon, n.Title, n.Message, n.Action, toast, email)
		return err
	default:
		return fmt.Errorf("unsupported output format: %s", opts.format)
	}
}

func digestCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "digest",
		Short: "Send the pending-record digest to HR once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}

			task := scheduler.NewPendingDigestTask(a.records, a.dispatcher, a.audit)
			if err := task.Execute(context.Background()); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Digest sent for %d pending records\n",
				len(a.records.ListByStatus(compliance.StatusPending)))
			return nil
		},
	}
}
