package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iliyamo/radiology-portal/internal/client"
	"github.com/iliyamo/radiology-portal/internal/model"
)

func userTable(u model.User) table {
	return table{
		headers: []string{"ID", "EMAIL", "NAME", "ROLE", "UNIT"},
		rows:    [][]string{{u.ID, u.Email, u.FullName, string(u.Role), deref(u.UnitName)}},
	}
}

// ----- auth -----

func (a *app) loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and keep the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				return fmt.Errorf("--email is required")
			}
			if password == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}

			s, err := a.session(cmd.Context(), false)
			if err != nil {
				return err
			}
			u, err := s.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			return a.printer(cmd.OutOrStdout()).print(map[string]any{"user": u}, userTable(u))
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "login (email or user name)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when omitted)")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.session(cmd.Context(), false)
			if err != nil {
				return err
			}
			store, err := a.tokenStore()
			if err != nil {
				return err
			}
			tok, err := store.Load()
			if err != nil {
				return err
			}
			if tok == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "not logged in")
				return nil
			}
			s.Client().SetToken(tok)
			if err := s.Logout(cmd.Context()); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: server logout failed:", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func (a *app) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.session(cmd.Context(), true)
			if err != nil {
				return err
			}
			u, _ := s.User()
			caps := []string{}
			for _, c := range []model.Capability{model.CapViewExam, model.CapReport, model.CapPrintReport, model.CapAdmin} {
				if s.Can(c) {
					caps = append(caps, string(c))
				}
			}
			t := userTable(u)
			t.headers = append(t.headers, "CAPABILITIES")
			t.rows[0] = append(t.rows[0], strings.Join(caps, ","))
			return a.printer(cmd.OutOrStdout()).print(map[string]any{"user": u, "capabilities": caps}, t)
		},
	}
}

// ----- studies -----

func (a *app) studiesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "studies", Short: "Browse imaging studies"}

	var q client.StudyQuery
	list := &cobra.Command{
		Use:   "list",
		Short: "List studies, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.session(cmd.Context(), true)
			if err != nil {
				return err
			}
			page, err := s.Client().Studies(cmd.Context(), q)
			if err != nil {
				return err
			}
			t := table{headers: []string{"ID", "DATE", "PATIENT", "ACCESSION", "MODALITIES", "REPORT"}}
			for _, st := range page.Studies {
				status := "pending"
				if st.ReportStatus != nil {
					status = string(*st.ReportStatus)
				}
				t.rows = append(t.rows, []string{
					st.ID, st.StudyDate, model.FormatPatientName(st.PatientName), st.AccessionNumber,
					strings.Join(st.Modalities, ","), status,
				})
			}
			out := a.printer(cmd.OutOrStdout())
			if err := out.print(page, t); err != nil {
				return err
			}
			if out.format == formatTable {
				p := page.Pagination
				fmt.Fprintf(cmd.OutOrStdout(), "page %d of %d (%d studies)\n", p.Page, p.TotalPages, p.Total)
			}
			return nil
		},
	}
	f := list.Flags()
	f.StringVar(&q.PatientName, "patient", "", "patient name contains")
	f.StringVar(&q.AccessionNumber, "accession", "", "accession number contains")
	f.StringVar(&q.Modality, "modality", "", "modality, e.g. CT")
	f.StringVar(&q.StudyDate, "date", "", "study date (YYYY-MM-DD)")
	f.StringVar(&q.DateFrom, "from", "", "earliest study date (YYYY-MM-DD)")
	f.StringVar(&q.DateTo, "to", "", "latest study date (YYYY-MM-DD)")
	f.StringVar(&q.ReportStatus, "status", "", "report status: pending, draft, signed, revised")
	f.IntVar(&q.Page, "page", 1, "page number")
	f.IntVar(&q.Limit, "limit", 20, "studies per page")

	get := &cobra.Command{
		Use:   "get STUDY_ID",
		Short: "Show one study",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.session(cmd.Context(), true)
			if err != nil {
				return err
			}
			st, err := s.Client().Study(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			t := table{
				headers: []string{"ID", "UID", "PATIENT", "PATIENT ID", "DATE", "TIME", "DESCRIPTION"},
				rows: [][]string{{st.ID, st.StudyInstanceUID, model.FormatPatientName(st.PatientName),
					st.PatientID, st.StudyDate, st.StudyTime, st.Description}},
			}
			return a.printer(cmd.OutOrStdout()).print(map[string]any{"study": st}, t)
		},
	}

	cmd.AddCommand(list, get)
	return cmd
}

// ----- reports -----

func reportTable(r model.Report) table {
	return table{
		headers: []string{"ID", "STUDY", "STATUS", "AUTHOR", "UPDATED", "CONTENT"},
		rows: [][]string{{r.ID, r.StudyID, string(r.Status), deref(r.AuthorName),
			r.UpdatedAt.Format("2006-01-02 15:04"), firstLine(r.Content)}},
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}

func (a *app) reportsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "reports", Short: "Read and write study reports"}

	get := &cobra.Command{
		Use:   "get STUDY_ID",
		Short: "Show the report of a study",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.session(cmd.Context(), true)
			if err != nil {
				return err
			}
			r, err := s.Client().Report(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printer(cmd.OutOrStdout()).print(map[string]any{"report": r}, reportTable(r))
		},
	}

	var in client.ReportInput
	var contentFile, templateID string
	save := &cobra.Command{
		Use:   "save STUDY_ID",
		Short: "Create or update the report of a study",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.StudyID = args[0]
			if contentFile != "" {
				b, err := os.ReadFile(contentFile)
				if err != nil {
					return err
				}
				in.Content = string(b)
			}
			if strings.TrimSpace(in.Content) == "" {
				return fmt.Errorf("report content is empty; use --content or --file")
			}
			if templateID != "" {
				in.TemplateID = &templateID
			}

			s, err := a.session(cmd.Context(), true)
			if err != nil {
				return err
			}
			r, err := s.Client().SaveReport(cmd.Context(), in)
			if err != nil {
				return err
			}
			return a.printer(cmd.OutOrStdout()).print(map[string]any{"report": r}, reportTable(r))
		},
	}
	save.Flags().StringVar(&in.Content, "content", "", "report text")
	save.Flags().StringVarP(&contentFile, "file", "f", "", "read report text from a file")
	save.Flags().StringVar(&in.Status, "status", "draft", "draft, signed or revised")
	save.Flags().StringVar(&templateID, "template", "", "template the report started from")

	cmd.AddCommand(get, save)
	return cmd
}

// ----- reference data -----

func (a *app) templatesCmd() *cobra.Command {
	var modality string
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List report templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.session(cmd.Context(), true)
			if err != nil {
				return err
			}
			items, err := s.Client().Templates(cmd.Context(), modality)
			if err != nil {
				return err
			}
			t := table{headers: []string{"ID", "NAME", "MODALITY"}}
			for _, it := range items {
				t.rows = append(t.rows, []string{it.ID, it.Name, deref(it.Modality)})
			}
			return a.printer(cmd.OutOrStdout()).print(map[string]any{"templates": items}, t)
		},
	}
	cmd.Flags().StringVar(&modality, "modality", "", "only templates for this modality")

	snippets := &cobra.Command{
		Use:   "snippets",
		Short: "List report snippets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.session(cmd.Context(), true)
			if err != nil {
				return err
			}
			items, err := s.Client().Snippets(cmd.Context())
			if err != nil {
				return err
			}
			t := table{headers: []string{"ID", "CATEGORY", "NAME"}}
			for _, it := range items {
				t.rows = append(t.rows, []string{it.ID, it.Category, it.Name})
			}
			return a.printer(cmd.OutOrStdout()).print(map[string]any{"snippets": items}, t)
		},
	}
	cmd.AddCommand(snippets)
	return cmd
}

func (a *app) auditCmd() *cobra.Command {
	var page, limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the audit log, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.session(cmd.Context(), true)
			if err != nil {
				return err
			}
			res, err := s.Client().Audit(cmd.Context(), page, limit)
			if err != nil {
				return err
			}
			t := table{headers: []string{"WHEN", "ACTION", "USER", "TARGET", "IP"}}
			for _, e := range res.Logs {
				user := deref(e.UserEmail)
				if user == "-" {
					user = deref(e.UserID)
				}
				t.rows = append(t.rows, []string{
					e.CreatedAt.Format("2006-01-02 15:04:05"), string(e.Action), user,
					e.TargetType + ":" + deref(e.TargetID), deref(e.IPAddress),
				})
			}
			return a.printer(cmd.OutOrStdout()).print(res, t)
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&limit, "limit", 50, "entries per page")
	return cmd
}

func (a *app) healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the portal is up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.session(cmd.Context(), false)
			if err != nil {
				return err
			}
			h, err := s.Client().Health(cmd.Context())
			if err != nil {
				return err
			}
			t := table{headers: []string{"STATUS", "TIMESTAMP", "SERVER"},
				rows: [][]string{{h.Status, h.Timestamp, s.Client().BaseURL()}}}
			return a.printer(cmd.OutOrStdout()).print(h, t)
		},
	}
}
