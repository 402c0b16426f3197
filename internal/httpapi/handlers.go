package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/HugoJanow/ArticlePulse/internal/errors"
	"github.com/HugoJanow/ArticlePulse/internal/httputil"
	"github.com/HugoJanow/ArticlePulse/services/catalog"
	"github.com/HugoJanow/ArticlePulse/services/entitlement"
)

// looseString accepts a JSON string or a JSON number and keeps its literal text, so atomic
// prices above 2^53 survive decoding.
type looseString string

func (l *looseString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*l = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*l = looseString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected a string or a number")
	}
	*l = looseString(n.String())
	return nil
}

type createArticleRequest struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Author      string      `json:"author"`
	Price       looseString `json:"price"`
	Content     string      `json:"content"`
}

type addressRequest struct {
	UserAddress string `json:"userAddress"`
}

type contentRequest struct {
	Content string `json:"content"`
}

type recordPurchaseRequest struct {
	ArticleID            looseString `json:"articleId"`
	UserAddress          string      `json:"userAddress"`
	TransactionReference string      `json:"transactionReference"`
	TransactionHash      string      `json:"transactionHash"`
	Price                looseString `json:"price"`
}

type verifyPurchaseRequest struct {
	ArticleID   looseString `json:"articleId"`
	UserAddress string      `json:"userAddress"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ledgerState := "enabled"
	if !s.ledger.Addresses().Configured() {
		ledgerState = "disabled"
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"environment": s.environment,
		"ledger":      ledgerState,
		"timestamp":   time.Now().UTC(),
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	httputil.NotFound(w, r, "route not found")
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	httputil.WriteErrorResponse(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
}

func (s *Server) handleListArticles(w http.ResponseWriter, r *http.Request) {
	articles, err := s.catalog.ListArticles(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, articles)
}

func (s *Server) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	article, err := s.catalog.GetArticle(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, article)
}

func (s *Server) handleCreateArticle(w http.ResponseWriter, r *http.Request) {
	var req createArticleRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	article, err := s.catalog.CreateArticle(r.Context(), catalog.NewArticle{
		Title:       req.Title,
		Description: req.Description,
		Author:      req.Author,
		Price:       string(req.Price),
		Content:     req.Content,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, article)
}

func (s *Server) handleAttachContent(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	article, err := s.catalog.AttachContent(r.Context(), mux.Vars(r)["id"], req.Content)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, article)
}

func (s *Server) handleRotateKey(w http.ResponseWriter, r *http.Request) {
	article, err := s.catalog.RotateKey(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, article)
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if err := httputil.ReadOptionalJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	s.serveContent(w, r, mux.Vars(r)["id"], req.UserAddress)
}

func (s *Server) handleContentByPath(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s.serveContent(w, r, vars["id"], vars["userAddress"])
}

func (s *Server) serveContent(w http.ResponseWriter, r *http.Request, ref, requester string) {
	content, _, err := s.broker.Content(r.Context(), ref, requester)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	httputil.WriteJSON(w, http.StatusOK, content)
}

func (s *Server) handlePurchaseArticle(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	result, err := s.purchaser.Purchase(r.Context(), mux.Vars(r)["id"], req.UserAddress)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, result)
}

func (s *Server) handleContracts(w http.ResponseWriter, r *http.Request) {
	addrs := s.ledger.Addresses()
	if !addrs.Configured() {
		s.fail(w, r, errors.NotFound("contracts", "deployment"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, addrs)
}

func (s *Server) handleRecordPurchase(w http.ResponseWriter, r *http.Request) {
	var req recordPurchaseRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	articleID, err := entitlement.ParseArticleID(string(req.ArticleID))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	txRef := req.TransactionReference
	if txRef == "" {
		txRef = req.TransactionHash
	}
	purchase, err := s.purchaser.Record(r.Context(), articleID, req.UserAddress, txRef, string(req.Price))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, purchase)
}

func (s *Server) handleVerifyPurchase(w http.ResponseWriter, r *http.Request) {
	var req verifyPurchaseRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	articleID, err := entitlement.ParseArticleID(string(req.ArticleID))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok, err := s.entitlements.VerifyPurchase(r.Context(), articleID, req.UserAddress)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"isPurchased": ok})
}

func (s *Server) handleListPurchases(w http.ResponseWriter, r *http.Request) {
	ids, err := s.entitlements.ListPurchasedArticleIDs(r.Context(), mux.Vars(r)["userAddress"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ids)
}

func (s *Server) handlePurchaseHistory(w http.ResponseWriter, r *http.Request) {
	purchases, err := s.entitlements.ListPurchases(r.Context(), mux.Vars(r)["userAddress"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, purchases)
}

func (s *Server) handleResetPurchases(w http.ResponseWriter, r *http.Request) {
	n, err := s.purchaser.Reset(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	atomic, err := s.ledger.Balance(r.Context(), address)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"balance": s.ledger.FormatUnits(r.Context(), atomic),
		"atomic":  atomic.String(),
	})
}

// fail logs server-side failures and renders err.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	se := errors.GetServiceError(err)
	if se == nil || se.HTTPStatus >= http.StatusInternalServerError {
		s.logger.WithContext(r.Context()).WithError(err).WithFields(map[string]interface{}{
			"path":   r.URL.Path,
			"method": r.Method,
			"code":   string(errors.CodeOf(err)),
		}).Error("Request failed")
	}
	httputil.WriteError(w, r, err)
}
