package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"lsgw/internal/backends"
	"lsgw/internal/install"
	"lsgw/internal/protocol"
)

// OutputFormat represents the output format for CLI commands
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatHuman OutputFormat = "human"
)

// FormatResponse formats a response according to the specified format
func FormatResponse(resp interface{}, format OutputFormat) (string, error) {
	switch format {
	case FormatJSON:
		return formatJSON(resp)
	case FormatHuman:
		return formatHuman(resp)
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

// formatJSON formats the response as JSON
func formatJSON(resp interface{}) (string, error) {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

// formatHuman renders the CLI's own response types as tables and falls
// back to JSON for anything else.
func formatHuman(resp interface{}) (string, error) {
	switch v := resp.(type) {
	case []backends.Status:
		return formatStatusesHuman(v), nil
	case []install.Record:
		return formatRecordsHuman(v), nil
	case []protocol.LanguageRegex:
		return formatRegexesHuman(v), nil
	case *doctorReport:
		return formatDoctorHuman(v), nil
	default:
		return formatJSON(resp)
	}
}

func table(write func(w *tabwriter.Writer)) string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	write(w)
	_ = w.Flush()
	return strings.TrimRight(b.String(), "\n")
}

func formatStatusesHuman(statuses []backends.Status) string {
	if len(statuses) == 0 {
		return "No backends registered."
	}
	return table(func(w *tabwriter.Writer) {
		fmt.Fprintln(w, "ID\tLANGUAGES\tCOMMUNICATION\tLOCAL\tSTATE")
		for _, st := range statuses {
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n",
				st.ID, strings.Join(st.Languages, ","), st.Communication, st.Local, statusState(st))
		}
	})
}

func statusState(st backends.Status) string {
	switch {
	case st.Initialized:
		return "initialized"
	case st.InstanceReady:
		return "instance-ready"
	case st.StreamsReady:
		return "streams-ready"
	default:
		return "unconfigured"
	}
}

func formatRecordsHuman(records []install.Record) string {
	if len(records) == 0 {
		return "No install records."
	}
	return table(func(w *tabwriter.Writer) {
		fmt.Fprintln(w, "BACKEND\tSTATUS\tCOMMAND\tPATH\tCHECKED")
		for _, r := range records {
			path := r.ResolvedPath
			if path == "" {
				path = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				r.BackendID, r.Status, r.Command, path, r.CheckedAt.Format("2006-01-02 15:04:05"))
		}
	})
}

func formatRegexesHuman(regexes []protocol.LanguageRegex) string {
	if len(regexes) == 0 {
		return "No language patterns."
	}
	return table(func(w *tabwriter.Writer) {
		fmt.Fprintln(w, "LANGUAGE\tPATTERN")
		for _, r := range regexes {
			fmt.Fprintf(w, "%s\t%s\n", r.LanguageID, r.NamePattern)
		}
	})
}

func formatDoctorHuman(r *doctorReport) string {
	var b strings.Builder
	mark := func(ok bool) string {
		if ok {
			return "✓"
		}
		return "✗"
	}

	fmt.Fprintf(&b, "Workspace: %s\n", r.Root)
	fmt.Fprintf(&b, "%s projects root %s\n", mark(r.ProjectsRootExists), r.ProjectsRoot)
	fmt.Fprintf(&b, "%s %d backend(s) registered", mark(len(r.Ingest.Registered) > 0), len(r.Ingest.Registered))
	if len(r.Ingest.Registered) > 0 {
		fmt.Fprintf(&b, ": %s", strings.Join(r.Ingest.Registered, ", "))
	}
	b.WriteString("\n")
	if len(r.Ingest.Skipped) > 0 {
		fmt.Fprintf(&b, "  skipped duplicates: %s\n", strings.Join(r.Ingest.Skipped, ", "))
	}
	for _, key := range sortedKeys(r.Ingest.Failed) {
		fmt.Fprintf(&b, "%s %s: %s\n", mark(false), key, r.Ingest.Failed[key])
	}
	for _, key := range sortedKeys(r.Ingest.ProviderErrors) {
		fmt.Fprintf(&b, "%s provider %s: %s\n", mark(false), key, r.Ingest.ProviderErrors[key])
	}
	if len(r.Installs) > 0 {
		b.WriteString("\n")
		b.WriteString(formatRecordsHuman(r.Installs))
		b.WriteString("\n")
	}
	if r.Healthy {
		b.WriteString("\nAll checks passed.")
	} else {
		b.WriteString("\nSome checks failed.")
	}
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
