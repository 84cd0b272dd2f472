package importcsv

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/commonpurse/commonpurse/internal/http/respond"
	"github.com/commonpurse/commonpurse/internal/roster"
)

type Handler struct {
	rosterSvc *roster.Service
}

func NewHandler(rosterSvc *roster.Service) *Handler {
	return &Handler{rosterSvc: rosterSvc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.importRoster)
}

type entryDTO struct {
	Line          int         `json:"line"`
	WalletAddress string      `json:"wallet_address"`
	Name          string      `json:"name,omitempty"`
	Role          roster.Role `json:"role"`
}

type conflictDTO struct {
	Entry   entryDTO `json:"entry"`
	Message string   `json:"message"`
}

type importResponse struct {
	Charset   string            `json:"charset"`
	Added     []entryDTO        `json:"added"`
	Conflicts []conflictDTO     `json:"conflicts"`
	Invalid   []roster.RowError `json:"invalid"`
}

func (h *Handler) importRoster(w http.ResponseWriter, r *http.Request) {
	communityID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.BadRequest(w, "invalid id")
		return
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		respond.BadRequest(w, "failed to parse form: "+err.Error())
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		respond.BadRequest(w, "file field is required")
		return
	}
	defer file.Close()

	res, err := h.rosterSvc.Import(r.Context(), communityID, file)
	if err != nil {
		respond.Error(w, err)
		return
	}

	resp := importResponse{
		Charset:   string(res.Charset),
		Added:     make([]entryDTO, 0, len(res.Added)),
		Conflicts: make([]conflictDTO, 0, len(res.Conflicts)),
		Invalid:   res.Invalid,
	}

	if resp.Invalid == nil {
		resp.Invalid = []roster.RowError{}
	}

	for _, e := range res.Added {
		resp.Added = append(resp.Added, toEntryDTO(e))
	}

	for _, c := range res.Conflicts {
		resp.Conflicts = append(resp.Conflicts, conflictDTO{Entry: toEntryDTO(c.Entry), Message: c.Message})
	}

	status := http.StatusCreated
	if len(resp.Added) == 0 && len(resp.Conflicts) > 0 {
		status = http.StatusConflict
	}

	respond.JSON(w, status, resp)
}

func toEntryDTO(e roster.Entry) entryDTO {
	return entryDTO{
		Line:          e.Line,
		WalletAddress: e.WalletAddress,
		Name:          e.Name,
		Role:          e.Role,
	}
}
