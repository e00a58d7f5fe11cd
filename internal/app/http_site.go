package app

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"kisscoffee/site/internal/auth"
	"kisscoffee/site/internal/authpw"
	"kisscoffee/site/internal/export"
	"kisscoffee/site/internal/gate"
	"kisscoffee/site/internal/rbac"
	"kisscoffee/site/internal/reconcile"
	"kisscoffee/site/internal/settings"
	"kisscoffee/site/internal/web"

	"github.com/go-chi/chi/v5"
)

const (
	msgLoadFailed       = "Failed to load settings. Please try again."
	msgFillAllFields    = "Please fill in all fields"
	msgSignInFailed     = "Sign-in is unavailable right now. Please try again."
	msgNoEditPermission = "Your account cannot edit the site."
	msgExportFailed     = "Export failed. Please try again."
	msgPDFUnavailable   = "PDF export is not available on this server."
)

type sectionMessages struct {
	section reconcile.Section
	success string
	failure string
}

// saveActions maps the save buttons of the editor to what they write.
var saveActions = map[string]sectionMessages{
	"save-message":  {reconcile.SectionMessage, "Custom message saved successfully!", "Failed to save message. Please try again."},
	"save-hours":    {reconcile.SectionHours, "Opening hours saved successfully!", "Failed to save hours. Please try again."},
	"save-services": {reconcile.SectionServices, "Services updated successfully!", "Failed to update services. Please try again."},
	"save-all":      {reconcile.SectionAll, "All changes saved successfully!", "Failed to save all changes. Please try again."},
}

const (
	addItemSuccess = "Item added successfully!"
	addItemFailure = "Failed to add item. Please try again."
)

// editorForm is a parsed POST of the admin editor.
type editorForm struct {
	values         reconcile.FormValues
	action         string
	selectCategory string
	deleteItem     string
	newItem        settings.MenuItem
	newCategory    string
}

// adminPage is what the next render of the admin page shows besides the
// reconciler state.
type adminPage struct {
	status     int
	flash      *web.Flash
	loginError string
	loginEmail string
	form       *editorForm
	saved      reconcile.Section
	keepNew    bool
}

func (s *HTTPServer) handleHome(w http.ResponseWriter, r *http.Request) {
	doc, err := s.service.FetchSettings(r.Context())
	if err != nil {
		s.logger.Error("homepage settings fetch failed", "error", err)
	}
	s.writeHTML(w, http.StatusOK, func(out io.Writer) error {
		return s.site.Home(out, web.HomeView{Settings: doc, Failed: err != nil})
	})
}

func (s *HTTPServer) handleAdmin(w http.ResponseWriter, r *http.Request) {
	ed := s.editors.lookup(r)
	if ed == nil {
		s.renderAdmin(w, nil, adminPage{status: http.StatusOK})
		return
	}
	defer ed.mu.Unlock()

	page := adminPage{status: http.StatusOK}
	if _, ok := ed.gate.Authenticated(r.Context()); ok {
		page.flash = s.ensureLoaded(r, ed)
	}
	s.renderAdmin(w, ed, page)
}

func (s *HTTPServer) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	ed := s.editors.acquire(w, r)
	defer ed.mu.Unlock()

	if err := r.ParseForm(); err != nil {
		s.renderAdmin(w, ed, adminPage{status: http.StatusBadRequest, loginError: web.LoginErrorMessage})
		return
	}
	email := strings.TrimSpace(r.PostForm.Get("email"))
	password := r.PostForm.Get("password")

	if err := ed.gate.SignIn(r.Context(), email, password); err != nil {
		page := adminPage{loginEmail: email}
		var throttled *authpw.ThrottleError
		switch {
		case errors.As(err, &throttled):
			page.status = http.StatusTooManyRequests
			page.loginError = fmt.Sprintf("Too many failed attempts. Please wait %d seconds and try again.", throttled.Wait)
			w.Header().Set("Retry-After", strconv.Itoa(throttled.Wait))
		case errors.Is(err, gate.ErrInvalidCredentials):
			page.status = http.StatusUnauthorized
			page.loginError = web.LoginErrorMessage
		default:
			s.logger.Error("admin sign in failed", "error", err)
			page.status = http.StatusInternalServerError
			page.loginError = msgSignInFailed
		}
		s.renderAdmin(w, ed, page)
		return
	}

	ed.rec.Reset()
	page := adminPage{status: http.StatusOK}
	page.flash = s.ensureLoaded(r, ed)
	s.renderAdmin(w, ed, page)
}

func (s *HTTPServer) handleAdminLogout(w http.ResponseWriter, r *http.Request) {
	ed := s.editors.lookup(r)
	if ed == nil {
		http.Redirect(w, r, "/admin", http.StatusSeeOther)
		return
	}
	defer ed.mu.Unlock()

	if err := ed.gate.SignOut(r.Context()); err != nil {
		s.logger.Warn("admin sign out failed", "error", err)
	}
	ed.rec.Reset()
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

func (s *HTTPServer) handleAdminEditor(w http.ResponseWriter, r *http.Request) {
	ed := s.editors.lookup(r)
	if ed == nil {
		s.renderAdmin(w, nil, adminPage{status: http.StatusUnauthorized})
		return
	}
	defer ed.mu.Unlock()

	sess, ok := ed.gate.Authenticated(r.Context())
	if !ok {
		s.renderAdmin(w, ed, adminPage{status: http.StatusUnauthorized})
		return
	}
	if !s.service.Can(sess.Role, rbac.ActionEdit) {
		s.renderAdmin(w, ed, adminPage{status: http.StatusForbidden, flash: errorFlash(msgNoEditPermission)})
		return
	}
	if flash := s.ensureLoaded(r, ed); flash != nil {
		s.renderAdmin(w, ed, adminPage{status: http.StatusOK, flash: flash})
		return
	}
	if err := r.ParseForm(); err != nil {
		s.renderAdmin(w, ed, adminPage{status: http.StatusBadRequest})
		return
	}

	form := parseEditorForm(r, ed.rec.Snapshot())
	deleteIndex, deleting := -1, false
	if form.selectCategory == "" && form.deleteItem != "" {
		if index, err := strconv.Atoi(form.deleteItem); err == nil {
			deleteIndex, deleting = index, true
		}
	}
	if deleting && form.values.RowsPresent {
		// The index is a rendered row position, so it is applied before
		// incomplete rows are dropped by staging.
		if deleteIndex >= 0 && deleteIndex < len(form.values.Rows) {
			form.values.Rows = slices.Delete(form.values.Rows, deleteIndex, deleteIndex+1)
		}
		deleting = false
	}
	form.values = ed.rec.Stage(form.values)

	page := adminPage{status: http.StatusOK, form: &form}
	switch {
	case form.selectCategory != "":
		ed.rec.SelectCategory(form.selectCategory)
	case form.deleteItem != "":
		if deleting {
			ed.rec.DeleteMenuItem(ed.rec.CurrentCategory(), deleteIndex)
		}
	case form.action == "add-item":
		s.addItem(r, ed, &form, &page)
	default:
		messages, known := saveActions[form.action]
		if !known {
			break
		}
		write := ed.rec.SectionWrite(messages.section, form.values)
		if err := ed.rec.Commit(r.Context(), write); err != nil {
			page.flash = errorFlash(messages.failure)
			break
		}
		page.flash = successFlash(messages.success)
		page.saved = messages.section
	}
	s.renderAdmin(w, ed, page)
}

func (s *HTTPServer) addItem(r *http.Request, ed *editor, form *editorForm, page *adminPage) {
	page.keepNew = true
	if form.newCategory == "" || form.newItem.Name == "" || form.newItem.Price == "" {
		page.flash = errorFlash(msgFillAllFields)
		return
	}
	ed.rec.UpsertMenuItem(form.newCategory, form.newItem)
	write := ed.rec.SectionWrite(reconcile.SectionMenu, form.values)
	if err := ed.rec.Commit(r.Context(), write); err != nil {
		page.flash = errorFlash(addItemFailure)
		return
	}
	page.keepNew = false
	page.flash = successFlash(addItemSuccess)
	page.saved = reconcile.SectionMenu
}

func (s *HTTPServer) handleAdminExport(w http.ResponseWriter, r *http.Request) {
	ed := s.editors.lookup(r)
	if ed == nil {
		s.renderAdmin(w, nil, adminPage{status: http.StatusUnauthorized})
		return
	}
	defer ed.mu.Unlock()

	sess, ok := ed.gate.Authenticated(r.Context())
	if !ok {
		s.renderAdmin(w, ed, adminPage{status: http.StatusUnauthorized})
		return
	}
	if !s.service.Can(sess.Role, rbac.ActionExport) {
		s.renderAdmin(w, ed, adminPage{status: http.StatusForbidden, flash: errorFlash(msgNoEditPermission)})
		return
	}
	if flash := s.ensureLoaded(r, ed); flash != nil {
		s.renderAdmin(w, ed, adminPage{status: http.StatusOK, flash: flash})
		return
	}
	format, err := export.ParseFormat(chi.URLParam(r, "format"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	snapshot := ed.rec.Snapshot()
	res, err := s.service.ExportMenu(r.Context(), export.Request{Format: format}, &snapshot)
	if err != nil {
		message := msgExportFailed
		if errors.Is(err, export.ErrPDFDependencyMissing) {
			message = msgPDFUnavailable
		}
		s.renderAdmin(w, ed, adminPage{status: http.StatusOK, flash: errorFlash(message)})
		return
	}
	writeFile(w, res.Filename, res.MimeType, res.Data)
}

// ensureLoaded fetches the snapshot of a signed-in editor that has none yet.
func (s *HTTPServer) ensureLoaded(r *http.Request, ed *editor) *web.Flash {
	if ed.rec.State() != reconcile.Unloaded {
		return nil
	}
	if err := ed.rec.Load(r.Context()); err != nil {
		s.logger.Error("admin settings load failed", "error", err)
		return errorFlash(msgLoadFailed)
	}
	return nil
}

// renderAdmin writes the admin page of ed. A nil ed is a browser that never
// signed in and sees the sign-in form.
func (s *HTTPServer) renderAdmin(w http.ResponseWriter, ed *editor, page adminPage) {
	view := web.AdminView{
		State:      gate.LoggedOut,
		Flash:      page.flash,
		LoginError: page.loginError,
		LoginEmail: page.loginEmail,
	}
	if ed != nil {
		view.State = ed.gate.State()
		if sess, ok := ed.gate.Session(); ok {
			view.UserName = displayName(sess)
		}
	}
	if ed != nil && view.State == gate.LoggedIn && ed.rec.State() != reconcile.Unloaded {
		snapshot := ed.rec.Snapshot()
		if page.form != nil {
			snapshot = overlay(snapshot, page.form.values, page.saved)
			if page.keepNew {
				view.NewItem = page.form.newItem
				view.NewItemCategory = page.form.newCategory
			}
		}
		view.Settings = snapshot
		view.Category = ed.rec.CurrentCategory()
		view.Items = ed.rec.Items(view.Category)
	}
	s.writeHTML(w, page.status, func(out io.Writer) error {
		return s.site.Admin(out, view)
	})
}

// parseEditorForm reads the editor fields of r. Fields missing from the post
// keep the value of snapshot.
func parseEditorForm(r *http.Request, snapshot settings.Settings) editorForm {
	pf := r.PostForm
	field := func(name, fallback string) string {
		if _, ok := pf[name]; !ok {
			return fallback
		}
		return strings.ReplaceAll(pf.Get(name), "\r\n", "\n")
	}

	values := reconcile.FormValues{
		Message: field("message", snapshot.CustomMessage),
		Hours: settings.OpeningHours{
			MondayToFriday: field("mon_fri", snapshot.OpeningHours.MondayToFriday),
			Saturday:       field("sat", snapshot.OpeningHours.Saturday),
			Sunday:         field("sun", snapshot.OpeningHours.Sunday),
		},
		DineIn:      snapshot.HasService(settings.ServiceDineIn),
		Takeaway:    snapshot.HasService(settings.ServiceTakeaway),
		Category:    strings.TrimSpace(pf.Get("category")),
		RowsPresent: pf.Get("rows_present") == "1",
	}
	if pf.Get("services_present") == "1" {
		values.DineIn = pf.Get("service_dinein") == "on"
		values.Takeaway = pf.Get("service_takeaway") == "on"
	}

	names, prices := pf["item_name"], pf["item_price"]
	rows := max(len(names), len(prices))
	for i := 0; i < rows; i++ {
		var item settings.MenuItem
		if i < len(names) {
			item.Name = names[i]
		}
		if i < len(prices) {
			item.Price = prices[i]
		}
		values.Rows = append(values.Rows, item)
	}

	return editorForm{
		values:         values,
		action:         strings.TrimSpace(pf.Get("action")),
		selectCategory: strings.TrimSpace(pf.Get("select_category")),
		deleteItem:     strings.TrimSpace(pf.Get("delete_item")),
		newItem: settings.MenuItem{
			Name:  strings.TrimSpace(pf.Get("new_item_name")),
			Price: strings.TrimSpace(pf.Get("new_item_price")),
		},
		newCategory: strings.TrimSpace(pf.Get("new_item_category")),
	}
}

// overlay shows the submitted message, hours and services over snapshot so
// a re-rendered form keeps what was typed. The section just saved shows the
// accepted value instead.
func overlay(snapshot settings.Settings, values reconcile.FormValues, saved reconcile.Section) settings.Settings {
	if saved == reconcile.SectionAll {
		return snapshot
	}
	if saved != reconcile.SectionMessage {
		snapshot.CustomMessage = values.Message
	}
	if saved != reconcile.SectionHours {
		snapshot.OpeningHours = values.Hours
	}
	if saved != reconcile.SectionServices {
		snapshot.Services = settings.ServicesFromToggles(values.DineIn, values.Takeaway)
	}
	return snapshot
}

func displayName(sess auth.Session) string {
	if sess.UserName != "" {
		return sess.UserName
	}
	return sess.Email
}

func successFlash(text string) *web.Flash {
	return &web.Flash{Kind: web.FlashSuccess, Text: text}
}

func errorFlash(text string) *web.Flash {
	return &web.Flash{Kind: web.FlashError, Text: text}
}
