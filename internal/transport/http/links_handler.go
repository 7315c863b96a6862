package http

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Akmalwizdom/onyx-shortener/internal/config"
	"github.com/Akmalwizdom/onyx-shortener/internal/constants"
	"github.com/Akmalwizdom/onyx-shortener/internal/infrastructure/logger"
	appvalidation "github.com/Akmalwizdom/onyx-shortener/internal/infrastructure/validation"
	"github.com/Akmalwizdom/onyx-shortener/internal/processing/links"
	"github.com/Akmalwizdom/onyx-shortener/pkg/httputils"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type LinksHandler struct {
	cfg *config.Config
	svc *links.Service
}

func NewLinksHandler(cfg *config.Config, svc *links.Service) *LinksHandler {
	return &LinksHandler{cfg: cfg, svc: svc}
}

type createPolicyRequest struct {
	Type            string `json:"type" validate:"required,oneof=token nft"`
	ContractAddress string `json:"contractAddress" validate:"required,eth_addr"`
	MinBalance      string `json:"minBalance" validate:"omitempty,number"`
	ChainID         int64  `json:"chainId,omitempty"`
}

type createLinkRequest struct {
	URL          string               `json:"url" validate:"required,notblank,http_url"`
	Title        string               `json:"title,omitempty"`
	ExpiresIn    int                  `json:"expiresIn,omitempty" validate:"omitempty,gte=0"`
	ExpiresAt    *time.Time           `json:"expiresAt,omitempty" validate:"omitempty,future"`
	WalletAddr   string               `json:"walletAddress,omitempty" validate:"omitempty,eth_addr"`
	AccessPolicy *createPolicyRequest `json:"accessPolicy,omitempty"`
}

type quotaResponse struct {
	Scope     string `json:"scope"`
	Remaining int64  `json:"remaining"`
	Limit     int64  `json:"limit"`
	Reset     int64  `json:"reset,omitempty"`
}

type createLinkResponse struct {
	ID          string         `json:"id"`
	ShortCode   string         `json:"shortCode"`
	ShortURL    string         `json:"shortUrl"`
	OriginalURL string         `json:"originalUrl"`
	Title       string         `json:"title,omitempty"`
	Gated       bool           `json:"gated"`
	CreatedAt   time.Time      `json:"createdAt"`
	ExpiresAt   *time.Time     `json:"expiresAt,omitempty"`
	Quota       *quotaResponse `json:"quota,omitempty"`
}

func (h *LinksHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputils.WriteAPIError(w, r, constants.ErrInvalidRequestBody)
		return
	}
	if err := appvalidation.Validate(req); err != nil {
		httputils.WriteAPIError(w, r, mapValidationError(err))
		return
	}

	in := links.CreateLinkInput{
		URL:           req.URL,
		Title:         req.Title,
		ExpiresIn:     req.ExpiresIn,
		ExpiresAt:     req.ExpiresAt,
		CreatorWallet: req.WalletAddr,
		ClientIP:      clientIP(r),
	}
	if req.AccessPolicy != nil {
		in.Policy = &links.AccessPolicy{
			Type:            links.PolicyType(req.AccessPolicy.Type),
			ContractAddress: req.AccessPolicy.ContractAddress,
			MinBalance:      req.AccessPolicy.MinBalance,
			ChainID:         req.AccessPolicy.ChainID,
		}
	}

	link, adm, err := h.svc.CreateLink(r.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, links.ErrInvalidURL):
			httputils.WriteAPIError(w, r, constants.ErrInvalidURL)
		case errors.Is(err, links.ErrInvalidPolicy):
			httputils.WriteAPIError(w, r, constants.ErrInvalidPolicy)
		case errors.Is(err, links.ErrInvalidWallet):
			httputils.WriteAPIError(w, r, constants.ErrInvalidWallet)
		case errors.Is(err, links.ErrUnsafeURL):
			httputils.WriteAPIError(w, r, constants.ErrUnsafeURL)
		case errors.Is(err, links.ErrRateLimited):
			h.writeRateLimited(w, r, req.WalletAddr, adm)
		case errors.Is(err, links.ErrCodeExhausted):
			logger.Error("short code allocation exhausted", zap.String("url", req.URL))
			httputils.WriteAPIError(w, r, constants.ErrCodeExhausted)
		default:
			logger.Error("failed to create link", zap.Error(err))
			httputils.WriteAPIError(w, r, constants.ErrInternalError)
		}
		return
	}

	resp := createLinkResponse{
		ID:          link.ID,
		ShortCode:   link.ShortCode,
		ShortURL:    strings.TrimRight(h.cfg.Shortener.BaseURL, "/") + "/" + link.ShortCode,
		OriginalURL: link.OriginalURL,
		Title:       link.Title,
		Gated:       link.Gated(),
		CreatedAt:   link.CreatedAt,
		ExpiresAt:   link.ExpiresAt,
	}
	if adm.Remaining >= 0 {
		resp.Quota = &quotaResponse{
			Scope:     adm.Scope,
			Remaining: adm.Remaining,
			Limit:     adm.Limit,
			Reset:     adm.ResetAt.Unix(),
		}
	}

	httputils.WriteAPISuccess(w, r, constants.SuccessLinkCreated, resp)
}

func (h *LinksHandler) writeRateLimited(w http.ResponseWriter, r *http.Request, wallet string, adm links.Admission) {
	payload := httputils.RateLimitResponse{
		Type:      adm.Scope,
		Reset:     adm.ResetAt.Unix(),
		Remaining: 0,
		Limit:     adm.Limit,
	}
	if strings.TrimSpace(wallet) == "" {
		payload.Suggestion = "Connect a wallet to get a higher link creation quota."
	}
	httputils.WriteRateLimited(w, r, payload)
}

// Redirect is the hot path: every outcome is an HTTP redirect, never a JSON
// body, so browsers always land on a page.
func (h *LinksHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	decision, err := h.svc.Resolve(r.Context(), code, links.ClickMeta{
		Referrer:  r.Referer(),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		// Storage fault. Details stay in the logs; the visitor gets the
		// generic error page.
		logger.Error("failed to resolve short code", zap.Error(err), zap.String("code", code))
		http.Redirect(w, r, h.cfg.Shortener.ErrorPath, http.StatusFound)
		return
	}

	switch decision.State {
	case links.DecisionNotFound, links.DecisionExpired:
		http.Redirect(w, r, h.expiredURL(code, decision.Reason), http.StatusFound)
	case links.DecisionGated:
		http.Redirect(w, r, h.cfg.Shortener.UnlockPath+"/"+url.PathEscape(code), http.StatusFound)
	case links.DecisionOpen:
		http.Redirect(w, r, decision.OriginalURL, h.cfg.Shortener.RedirectStatus)
	default:
		logger.Error("unhandled redirect decision", zap.Int("state", int(decision.State)))
		http.Redirect(w, r, h.cfg.Shortener.ErrorPath, http.StatusFound)
	}
}

// RedirectPost absorbs probes that POST to short link paths. 204 keeps
// crawlers and prefetchers from retrying.
func (h *LinksHandler) RedirectPost(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (h *LinksHandler) expiredURL(code, reason string) string {
	q := url.Values{"code": {code}}
	if reason != "" {
		q.Set("reason", reason)
	}
	return h.cfg.Shortener.ExpiredPath + "?" + q.Encode()
}

type unlockRequest struct {
	ShortCode  string `json:"shortCode" validate:"required,notblank"`
	WalletAddr string `json:"walletAddress" validate:"required,eth_addr"`
}

type unlockResponse struct {
	OriginalURL string `json:"originalUrl"`
}

func (h *LinksHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	var req unlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputils.WriteAPIError(w, r, constants.ErrInvalidRequestBody)
		return
	}
	if err := appvalidation.Validate(req); err != nil {
		httputils.WriteAPIError(w, r, mapValidationError(err))
		return
	}

	originalURL, err := h.svc.Unlock(r.Context(), req.ShortCode, req.WalletAddr)
	if err != nil {
		switch {
		case errors.Is(err, links.ErrNotFound):
			httputils.WriteAPIError(w, r, constants.ErrLinkNotFound)
		case errors.Is(err, links.ErrInvalidWallet):
			httputils.WriteAPIError(w, r, constants.ErrInvalidWallet)
		case errors.Is(err, links.ErrGateDenied):
			httputils.WriteAPIError(w, r, constants.ErrGateDenied)
		case errors.Is(err, links.ErrVerification):
			logger.Error("on-chain verification failed",
				zap.Error(err), zap.String("code", req.ShortCode))
			httputils.WriteAPIError(w, r, constants.ErrVerificationFailed)
		default:
			logger.Error("failed to unlock link", zap.Error(err), zap.String("code", req.ShortCode))
			httputils.WriteAPIError(w, r, constants.ErrInternalError)
		}
		return
	}

	httputils.WriteAPISuccess(w, r, constants.SuccessGatePassed, unlockResponse{
		OriginalURL: originalURL,
	})
}

type policyResponse struct {
	Type            string `json:"type"`
	ContractAddress string `json:"contractAddress"`
	MinBalance      string `json:"minBalance"`
	ChainID         int64  `json:"chainId,omitempty"`
}

// linkDetailsResponse is the public pre-unlock projection. The destination
// URL is deliberately absent.
type linkDetailsResponse struct {
	ShortCode    string          `json:"shortCode"`
	Title        string          `json:"title,omitempty"`
	Gated        bool            `json:"gated"`
	AccessPolicy *policyResponse `json:"accessPolicy,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	ExpiresAt    *time.Time      `json:"expiresAt,omitempty"`
}

func (h *LinksHandler) Details(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(r.URL.Query().Get("slug"))
	if code == "" {
		httputils.WriteAPIError(w, r, constants.ErrInvalidRequestBody.WithMessage("slug is required"))
		return
	}

	link, err := h.svc.Details(r.Context(), code)
	if err != nil {
		if errors.Is(err, links.ErrNotFound) {
			httputils.WriteAPIError(w, r, constants.ErrLinkNotFound)
			return
		}
		logger.Error("failed to load link details", zap.Error(err), zap.String("code", code))
		httputils.WriteAPIError(w, r, constants.ErrInternalError)
		return
	}

	resp := linkDetailsResponse{
		ShortCode: link.ShortCode,
		Title:     link.Title,
		Gated:     link.Gated(),
		CreatedAt: link.CreatedAt,
		ExpiresAt: link.ExpiresAt,
	}
	if link.Gated() {
		resp.AccessPolicy = &policyResponse{
			Type:            string(link.AccessPolicy.Type),
			ContractAddress: link.AccessPolicy.ContractAddress,
			MinBalance:      link.AccessPolicy.MinBalance,
			ChainID:         link.AccessPolicy.ChainID,
		}
	}

	httputils.WriteAPISuccess(w, r, constants.SuccessLinkFound, resp)
}

func mapValidationError(err error) constants.APIError {
	apiErr := constants.ErrInvalidRequestBody
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return apiErr
	}
	for _, e := range validationErrs {
		switch {
		case e.Field() == "url":
			return constants.ErrInvalidURL
		case e.Field() == "walletAddress":
			return constants.ErrInvalidWallet
		case e.Field() == "contractAddress" || e.Field() == "type" || e.Field() == "minBalance":
			return constants.ErrInvalidPolicy
		case e.Field() == "expiresAt" && e.Tag() == "future":
			return apiErr.WithMessage("expiresAt must be in the future")
		}
	}
	return apiErr
}

// clientIP honors the leftmost X-Forwarded-For hop, falling back to the
// socket peer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
