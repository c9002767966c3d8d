package http

import (
	"errors"
	"html/template"
	"net/http"
	"sort"
	"strings"

	"tally/internal/core"
	"tally/internal/identity"
	"tally/internal/log"
	"tally/internal/services"
	"tally/internal/store"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if s.templates == nil {
		s.logger.ErrorContext(r.Context(), "Templates not loaded", log.FieldPath, r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	user, signedIn := s.session.CurrentUser()
	data := struct {
		SignedIn bool
		UserName string
	}{SignedIn: signedIn, UserName: user.DisplayName}

	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		s.logger.ErrorContext(r.Context(), "Index template execution failed", log.FieldError, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

type projectRow struct {
	ID      string
	Name    string
	Creator string
	Total   string
}

// handleDashboard renders the project list partial with per-project
// totals and the grand total. A pending sync error replaces the list
// with a blocking reload prompt.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if _, signedIn := s.session.CurrentUser(); !signedIn {
		s.renderPartial(w, r, "signin_prompt.html", nil)
		return
	}
	if err := s.session.SyncErr(); err != nil {
		s.logger.WarnContext(r.Context(), "Rendering sync error state", log.FieldError, err)
		s.renderPartial(w, r, "sync_error.html", struct{ Message string }{Message: err.Error()})
		return
	}

	expenses := s.session.Expenses()
	var rows []projectRow
	for _, p := range s.session.Projects() {
		rows = append(rows, projectRow{
			ID:      p.ID,
			Name:    p.Name,
			Creator: creatorLabel(p.CreatorName),
			Total:   core.FormatEuros(core.ProjectTotal(expenses, p.ID).Cents),
		})
	}

	data := struct {
		Projects   []projectRow
		GrandTotal string
	}{Projects: rows, GrandTotal: core.FormatEuros(core.GrandTotal(expenses).Cents)}
	s.renderPartial(w, r, "dashboard.html", data)
}

type expenseRow struct {
	ID        string
	Item      string
	Quantity  float64
	ShowUnit  bool
	UnitPrice string
	Total     string
	Creator   string
	Comments  string
}

type spendRow struct {
	Name   string
	Amount string
	Width  int
}

// handleProjectView renders the project detail partial: header,
// transaction list and the per-user spending distribution.
func (s *Server) handleProjectView(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if _, signedIn := s.session.CurrentUser(); !signedIn {
		s.renderPartial(w, r, "signin_prompt.html", nil)
		return
	}
	if err := s.session.SyncErr(); err != nil {
		s.renderPartial(w, r, "sync_error.html", struct{ Message string }{Message: err.Error()})
		return
	}

	projectID := strings.TrimSpace(r.URL.Query().Get("id"))
	var project *core.Project
	for _, p := range s.session.Projects() {
		if p.ID == projectID {
			project = &p
			break
		}
	}
	if project == nil {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`<div class="error">Project not found</div>`))
		return
	}

	expenses := s.session.Expenses()
	total := core.ProjectTotal(expenses, projectID)

	var rows []expenseRow
	for _, e := range expenses {
		if e.ProjectID != projectID {
			continue
		}
		rows = append(rows, expenseRow{
			ID:        e.ID,
			Item:      e.Item,
			Quantity:  e.Quantity,
			ShowUnit:  e.Quantity > 1,
			UnitPrice: core.FormatEuros(e.UnitPrice.Cents),
			Total:     core.FormatEuros(e.TotalPrice.Cents),
			Creator:   e.CreatorLabel(),
			Comments:  e.Comments,
		})
	}

	data := struct {
		ID       string
		Name     string
		Creator  string
		Total    string
		Expenses []expenseRow
		Spend    []spendRow
	}{
		ID:       project.ID,
		Name:     project.Name,
		Creator:  creatorLabel(project.CreatorName),
		Total:    core.FormatEuros(total.Cents),
		Expenses: rows,
		Spend:    spendRows(expenses, projectID, total),
	}
	s.renderPartial(w, r, "project.html", data)
}

// spendRows flattens the per-user rollup into display rows ordered by
// amount descending, with bar widths scaled to the project total.
func spendRows(expenses []core.Expense, projectID string, total core.Money) []spendRow {
	spend := core.SpendByUser(expenses, projectID)
	names := make([]string, 0, len(spend))
	for name := range spend {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if spend[names[i]].Cents != spend[names[j]].Cents {
			return spend[names[i]].Cents > spend[names[j]].Cents
		}
		return names[i] < names[j]
	})

	rows := make([]spendRow, 0, len(names))
	for _, name := range names {
		width := 0
		if total.Cents > 0 && spend[name].Cents > 0 {
			width = int((spend[name].Cents*100 + total.Cents/2) / total.Cents)
			if width < 2 {
				width = 2
			}
			if width > 100 {
				width = 100
			}
		}
		rows = append(rows, spendRow{
			Name:   name,
			Amount: core.FormatEuros(spend[name].Cents),
			Width:  width,
		})
	}
	return rows
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	user, err := s.session.SignIn(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Sign-in failed", log.FieldError, err)
		writeError(w, http.StatusBadGateway, "Sign-in failed")
		return
	}
	s.logger.InfoContext(r.Context(), "User signed in", log.FieldUserID, user.ID)
	triggerRefresh(w)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<div class="success">Signed in as ` + template.HTMLEscapeString(user.DisplayName) + `</div>`))
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	if err := s.session.SignOut(r.Context()); err != nil {
		s.logger.ErrorContext(r.Context(), "Sign-out failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Sign-out failed")
		return
	}
	triggerRefresh(w)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<div class="success">Signed out</div>`))
}

func (s *Server) handleDisplayName(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) || !parseForm(w, r) {
		return
	}
	name := sanitizeInput(r.Form.Get("name"))
	if err := s.session.UpdateDisplayName(r.Context(), name); err != nil {
		s.logger.ErrorContext(r.Context(), "Display name update failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Could not update name")
		return
	}
	triggerRefresh(w)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<div class="success">Name updated</div>`))
}

// handleReload retries the store subscriptions after a sync failure.
// Retrying is always explicit; a failed subscription never restarts on
// its own.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	if err := s.session.Reload(r.Context()); err != nil {
		s.logger.ErrorContext(r.Context(), "Reload failed", log.FieldError, err)
		writeError(w, http.StatusBadGateway, "Reload failed")
		return
	}
	triggerRefresh(w)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<div class="success">Reloaded</div>`))
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) || !parseForm(w, r) {
		return
	}
	name := sanitizeInput(r.Form.Get("name"))
	if _, err := s.ledger.CreateProject(r.Context(), name); err != nil {
		s.writeMutationError(w, r, err, "Could not create project")
		return
	}
	triggerRefresh(w)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<div class="success">Project created: ` + template.HTMLEscapeString(name) + `</div>`))
}

func (s *Server) handleRenameProject(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) || !parseForm(w, r) {
		return
	}
	id := strings.TrimSpace(r.Form.Get("id"))
	name := sanitizeInput(r.Form.Get("name"))
	if err := s.ledger.RenameProject(r.Context(), id, name); err != nil {
		s.writeMutationError(w, r, err, "Could not rename project")
		return
	}
	triggerRefresh(w)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<div class="success">Project renamed</div>`))
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) || !parseForm(w, r) {
		return
	}
	id := strings.TrimSpace(r.Form.Get("id"))
	if err := s.ledger.DeleteProjectCascade(r.Context(), id); err != nil {
		s.writeMutationError(w, r, err, "Could not delete project")
		return
	}
	triggerRefresh(w)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<div class="success">Project deleted</div>`))
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) || !parseForm(w, r) {
		return
	}
	in := expenseInputFromForm(r)
	if _, err := s.ledger.CreateExpense(r.Context(), in); err != nil {
		s.writeMutationError(w, r, err, "Could not save expense")
		return
	}
	triggerRefresh(w)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<div class="success">Expense saved: ` + template.HTMLEscapeString(in.Item) + `</div>`))
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) || !parseForm(w, r) {
		return
	}
	id := strings.TrimSpace(r.Form.Get("id"))
	if err := s.ledger.UpdateExpense(r.Context(), id, expenseInputFromForm(r)); err != nil {
		s.writeMutationError(w, r, err, "Could not update expense")
		return
	}
	triggerRefresh(w)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<div class="success">Expense updated</div>`))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) || !parseForm(w, r) {
		return
	}
	id := strings.TrimSpace(r.Form.Get("id"))
	if err := s.ledger.DeleteExpense(r.Context(), id); err != nil {
		s.writeMutationError(w, r, err, "Could not delete expense")
		return
	}
	triggerRefresh(w)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<div class="success">Expense deleted</div>`))
}

func expenseInputFromForm(r *http.Request) services.ExpenseInput {
	return services.ExpenseInput{
		ProjectID: strings.TrimSpace(r.Form.Get("project_id")),
		Item:      sanitizeInput(r.Form.Get("item")),
		Quantity:  strings.TrimSpace(r.Form.Get("quantity")),
		Amount:    strings.TrimSpace(r.Form.Get("amount")),
		PriceMode: strings.TrimSpace(r.Form.Get("price_mode")),
		Comments:  sanitizeInput(r.Form.Get("comments")),
	}
}

// writeMutationError maps service errors to the right status code and
// a short inline error fragment.
func (s *Server) writeMutationError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, identity.ErrNotSignedIn):
		writeError(w, http.StatusUnauthorized, "Sign in first")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrEmptyItem),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidQuantity),
		errors.Is(err, core.ErrMissingProject):
		writeError(w, http.StatusUnprocessableEntity, "Invalid input: "+err.Error())
	default:
		s.logger.ErrorContext(r.Context(), "Mutation failed", log.FieldError, err, log.FieldPath, r.URL.Path)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func (s *Server) renderPartial(w http.ResponseWriter, r *http.Request, name string, data any) {
	if s.templates == nil {
		writeError(w, http.StatusInternalServerError, "templates not loaded")
		return
	}
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		s.logger.ErrorContext(r.Context(), "Template execution error", log.FieldError, err, "template", name)
		_, _ = w.Write([]byte(`<div class="error">Rendering failed</div>`))
	}
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func parseForm(w http.ResponseWriter, r *http.Request) bool {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request format")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`<div class="error">` + template.HTMLEscapeString(msg) + `</div>`))
}

// triggerRefresh tells the htmx client to re-fetch the visible partials
// after a successful mutation.
func triggerRefresh(w http.ResponseWriter) {
	w.Header().Set("HX-Trigger", "ledger:changed")
}

func creatorLabel(name string) string {
	if strings.TrimSpace(name) == "" {
		return core.AnonymousUser
	}
	return name
}
