package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/ports"
)

const maxBodyBytes = 64 * 1024

// WebSocketServer est implémenté par le hub realtime.
type WebSocketServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, accountID string)
}

// Handler adapte HTTP vers les ports primaires du domaine.
type Handler struct {
	identity   ports.IdentityService
	graph      ports.GraphService
	engagement ports.EngagementService
	ws         WebSocketServer
	validate   *validator.Validate
}

func NewHandler(identity ports.IdentityService, graph ports.GraphService, engagement ports.EngagementService, ws WebSocketServer) *Handler {
	return &Handler{
		identity:   identity,
		graph:      graph,
		engagement: engagement,
		ws:         ws,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

// --- AUTH ---

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.identity.Register(r.Context(), ports.RegisterCmd{
		Handle:   req.Handle,
		Contact:  req.Contact,
		Password: req.Password,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAuthView(resp))
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.identity.Login(r.Context(), ports.LoginCmd{
		Identifier: req.Identifier,
		Password:   req.Password,
		IP:         r.RemoteAddr,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuthView(resp))
}

// --- COMPTES ---

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	account, err := h.identity.GetAccount(r.Context(), actorID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountView(account, true))
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.identity.GetAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountView(account, false))
}

// --- GRAPHE ---

func (h *Handler) follow(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	edge, err := h.graph.Follow(r.Context(), actorID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEdgeView(edge))
}

func (h *Handler) unfollow(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	edge, err := h.graph.Unfollow(r.Context(), actorID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEdgeView(edge))
}

// --- CONTENUS ---

func (h *Handler) createContent(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var req createContentRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.engagement.CreateContent(r.Context(), ports.CreateContentCmd{
		OwnerID:  actorID,
		MediaURL: req.MediaURL,
		Caption:  req.Caption,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toContentView(item))
}

func (h *Handler) getContent(w http.ResponseWriter, r *http.Request) {
	item, err := h.engagement.GetContent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toContentView(item))
}

func (h *Handler) toggleLike(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	state, err := h.engagement.ToggleLike(r.Context(), actorID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLikeView(state))
}

// --- REALTIME ---

func (h *Handler) websocket(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	h.ws.ServeWS(w, r, actorID)
}

// --- HELPERS ---

// decode lit un body JSON strict puis le valide. Écrit la réponse 400 en cas d'échec.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			writeInvalid(w, "request body is empty")
		} else {
			writeInvalid(w, "malformed JSON body")
		}
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeInvalid(w, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request"
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s", strings.ToLower(fe.Field()), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s", strings.ToLower(fe.Field()), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

// actor renvoie l'ID du compte authentifié ; 401 si la route a été montée sans RequireAuth.
func actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	account := AccountFromContext(r.Context())
	if account == nil {
		writeError(w, r, domain.ErrAuthMissing)
		return "", false
	}
	return account.ID, true
}
