package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"librario.org/internal/audit"
	"librario.org/internal/circ"
	"librario.org/internal/obs"
)

type createBookRequest struct {
	ISBN        string `json:"isbn"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	TotalCopies int    `json:"total_copies"`
}

type updateBookRequest struct {
	ISBN        *string `json:"isbn"`
	Title       *string `json:"title"`
	Author      *string `json:"author"`
	TotalCopies *int    `json:"total_copies"`
}

type putUserRequest struct {
	Name   string `json:"name"`
	Role   string `json:"role"`
	Active bool   `json:"active"`
}

type createLoanRequest struct {
	UserID string `json:"user_id"`
	BookID string `json:"book_id"`
}

type returnLoanResponse struct {
	Loan circ.Loan  `json:"loan"`
	Fine *circ.Fine `json:"fine,omitempty"`
}

// --- Catalog ---

func (a *API) handleBooksCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listBooks(w, r)
	case http.MethodPost:
		a.createBook(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleBookResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/books/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if strings.HasSuffix(path, "/availability") {
		id := strings.TrimSuffix(path, "/availability")
		id = strings.TrimSuffix(id, "/")
		if id == "" {
			writeError(w, r, http.StatusNotFound, "book not found")
			return
		}
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getAvailability(w, r, id)
		return
	}

	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.getBook(w, r, path)
	case http.MethodPatch:
		a.updateBook(w, r, path)
	case http.MethodDelete:
		a.deactivateBook(w, r, path)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) createBook(w http.ResponseWriter, r *http.Request) {
	var req createBookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, r, http.StatusBadRequest, "title is required")
		return
	}
	if req.TotalCopies < 1 {
		writeError(w, r, http.StatusBadRequest, "total_copies must be >= 1")
		return
	}

	book, err := a.circ.AddBook(r.Context(), circ.Book{
		ISBN:        strings.TrimSpace(req.ISBN),
		Title:       strings.TrimSpace(req.Title),
		Author:      strings.TrimSpace(req.Author),
		TotalCopies: req.TotalCopies,
	})
	if err != nil {
		handleCircError(w, r, err)
		return
	}

	a.audit(r.Context(), "catalog.book.add", "book", book.ID, map[string]any{
		"title":        book.Title,
		"total_copies": strconv.Itoa(book.TotalCopies),
	})

	w.Header().Set("Location", "/v1/books/"+book.ID)
	writeJSON(w, http.StatusCreated, book)
}

func (a *API) listBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	books, err := a.circ.ListBooks(r.Context(), circ.BookFilter{
		Query:         strings.TrimSpace(q.Get("q")),
		OnlyAvailable: q.Get("available") == "true",
		IncludeHidden: q.Get("include_hidden") == "true",
	})
	if err != nil {
		handleCircError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": books})
}

func (a *API) getBook(w http.ResponseWriter, r *http.Request, id string) {
	book, err := a.circ.GetBook(r.Context(), id)
	if err != nil {
		handleCircError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (a *API) updateBook(w http.ResponseWriter, r *http.Request, id string) {
	var req updateBookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	book, err := a.circ.UpdateBook(r.Context(), id, circ.BookUpdate{
		ISBN:        req.ISBN,
		Title:       req.Title,
		Author:      req.Author,
		TotalCopies: req.TotalCopies,
	})
	if err != nil {
		handleCircError(w, r, err)
		return
	}
	a.audit(r.Context(), "catalog.book.update", "book", book.ID, nil)
	writeJSON(w, http.StatusOK, book)
}

func (a *API) deactivateBook(w http.ResponseWriter, r *http.Request, id string) {
	if err := a.circ.DeactivateBook(r.Context(), id); err != nil {
		handleCircError(w, r, err)
		return
	}
	a.audit(r.Context(), "catalog.book.deactivate", "book", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) getAvailability(w http.ResponseWriter, r *http.Request, id string) {
	av, err := a.circ.InventoryCount(r.Context(), id)
	if err != nil {
		handleCircError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, av)
}

// --- Users ---

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodPut:
		a.putUser(w, r, id)
	case http.MethodGet:
		a.getUser(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func (a *API) putUser(w http.ResponseWriter, r *http.Request, id string) {
	var req putUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role := circ.Role(strings.ToUpper(strings.TrimSpace(req.Role)))
	switch role {
	case circ.RoleAdmin, circ.RoleLibrarian, circ.RoleStudent:
	default:
		writeError(w, r, http.StatusBadRequest, "role must be ADMIN, LIBRARIAN or STUDENT")
		return
	}

	user := circ.User{
		ID:     id,
		Name:   strings.TrimSpace(req.Name),
		Role:   role,
		Active: req.Active,
	}
	if err := a.circ.PutUser(r.Context(), user); err != nil {
		handleCircError(w, r, err)
		return
	}
	a.audit(r.Context(), "identity.user.put", "user", id, map[string]any{
		"role":   string(role),
		"active": strconv.FormatBool(req.Active),
	})
	writeJSON(w, http.StatusOK, user)
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request, id string) {
	user, err := a.circ.GetUser(r.Context(), id)
	if err != nil {
		handleCircError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// --- Loans ---

func (a *API) handleLoansCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createLoan(w, r)
	case http.MethodGet:
		a.listLoans(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleLoanResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/loans/")
	id, action, ok := splitAction(path)
	if !ok {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	switch action {
	case "reissue":
		a.reissueLoan(w, r, id)
	case "return":
		a.returnLoan(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) createLoan(w http.ResponseWriter, r *http.Request) {
	var req createLoanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	userID := strings.TrimSpace(req.UserID)
	bookID := strings.TrimSpace(req.BookID)
	if userID == "" || bookID == "" {
		writeError(w, r, http.StatusBadRequest, "user_id and book_id are required")
		return
	}

	ctx := audit.WithActor(r.Context(), userID)
	loan, err := a.circ.CreateLoan(ctx, userID, bookID)
	if err != nil {
		if errors.Is(err, circ.ErrOutOfStock) {
			obs.CountOutOfStock()
		}
		handleCircError(w, r, err)
		return
	}
	obs.CountLoanCreated()

	a.audit(ctx, "circ.loan.create", "loan", loan.ID, map[string]any{
		"book_id":  bookID,
		"due_date": loan.DueDate.Format("2006-01-02"),
	})

	w.Header().Set("Location", "/v1/loans/"+loan.ID)
	writeJSON(w, http.StatusCreated, loan)
}

func (a *API) listLoans(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := strings.TrimSpace(q.Get("user_id"))
	status := strings.ToLower(strings.TrimSpace(q.Get("status")))

	switch status {
	case "overdue":
		loans, err := a.circ.ListOverdueLoans(r.Context())
		if err != nil {
			handleCircError(w, r, err)
			return
		}
		if userID != "" {
			filtered := loans[:0]
			for _, l := range loans {
				if l.UserID == userID {
					filtered = append(filtered, l)
				}
			}
			loans = filtered
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": loans})
	case "", "active":
		if userID == "" {
			writeError(w, r, http.StatusBadRequest, "user_id query parameter is required")
			return
		}
		loans, err := a.circ.ListActiveLoans(r.Context(), userID)
		if err != nil {
			handleCircError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": loans})
	default:
		writeError(w, r, http.StatusBadRequest, "status must be active or overdue")
	}
}

func (a *API) reissueLoan(w http.ResponseWriter, r *http.Request, id string) {
	loan, err := a.circ.ReissueLoan(r.Context(), id)
	if err != nil {
		handleCircError(w, r, err)
		return
	}
	a.audit(r.Context(), "circ.loan.reissue", "loan", loan.ID, map[string]any{
		"due_date": loan.DueDate.Format("2006-01-02"),
	})
	writeJSON(w, http.StatusOK, loan)
}

func (a *API) returnLoan(w http.ResponseWriter, r *http.Request, id string) {
	loan, fine, err := a.circ.ReturnLoan(r.Context(), id)
	if err != nil {
		handleCircError(w, r, err)
		return
	}
	obs.CountLoanReturned()

	fields := map[string]any{"book_id": loan.BookID}
	if fine != nil {
		obs.CountFineAssessed()
		fields["fine_id"] = fine.ID
		fields["fine_amount"] = strconv.FormatInt(fine.Amount, 10)
	}
	a.audit(r.Context(), "circ.loan.return", "loan", loan.ID, fields)

	writeJSON(w, http.StatusOK, returnLoanResponse{Loan: loan, Fine: fine})
}

// --- Fines ---

func (a *API) handleFinesCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	q := r.URL.Query()
	status := strings.ToLower(strings.TrimSpace(q.Get("status")))
	if status != "" && status != "pending" {
		writeError(w, r, http.StatusBadRequest, "only pending fines can be listed")
		return
	}
	fines, err := a.circ.ListPendingFines(r.Context(), strings.TrimSpace(q.Get("user_id")))
	if err != nil {
		handleCircError(w, r, err)
		return
	}
	var total int64
	for _, f := range fines {
		total += f.Amount
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":         fines,
		"total_pending": total,
	})
}

func (a *API) handleFineResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/fines/")
	id, action, ok := splitAction(path)
	if !ok {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var fine circ.Fine
	var err error
	switch action {
	case "pay":
		fine, err = a.circ.PayFine(r.Context(), id)
	case "waive":
		fine, err = a.circ.WaiveFine(r.Context(), id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if err != nil {
		handleCircError(w, r, err)
		return
	}
	a.audit(r.Context(), "circ.fine."+action, "fine", fine.ID, map[string]any{
		"amount": strconv.FormatInt(fine.Amount, 10),
	})
	writeJSON(w, http.StatusOK, fine)
}

// --- Notifications ---

func (a *API) handleNotificationsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeError(w, r, http.StatusBadRequest, "user_id query parameter is required")
		return
	}
	notifs, err := a.circ.ListNotifications(r.Context(), userID)
	if err != nil {
		handleCircError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": notifs})
}

func (a *API) handleNotificationResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/notifications/")
	id, action, ok := splitAction(path)
	if !ok || action != "read" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if err := a.circ.MarkNotificationRead(r.Context(), id); err != nil {
		handleCircError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- helpers ---

// splitAction parses "{id}/{action}" resource paths.
func splitAction(path string) (id, action string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func (a *API) audit(ctx context.Context, event, entity, id string, fields map[string]any) {
	merged := map[string]any{
		"entity":    entity,
		"entity_id": id,
	}
	for k, v := range fields {
		merged[k] = v
	}
	_ = audit.LogEvent(ctx, event, merged)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handleCircError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, circ.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, circ.ErrUserNotEligible):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, circ.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, circ.ErrOutOfStock),
		errors.Is(err, circ.ErrDuplicateLoan),
		errors.Is(err, circ.ErrDuplicateISBN),
		errors.Is(err, circ.ErrOverdueBlock),
		errors.Is(err, circ.ErrInvalidTransition),
		errors.Is(err, circ.ErrAlreadyProcessed):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
