package handler

import (
	"net/http"

	"patient-registration/internal/rules"
	"patient-registration/pkg/response"
)

// RulesHandler publishes the registration rule table so clients validate
// with the same patterns and messages as the server.
type RulesHandler struct {
	table rules.Table
}

func NewRulesHandler() *RulesHandler {
	return &RulesHandler{table: rules.Describe()}
}

func (h *RulesHandler) GetRules(w http.ResponseWriter, r *http.Request) {
	response.Success(w, http.StatusOK, "", h.table)
}
