/*
handlers.go - HTTP API handlers for the KPI bonus service

PURPOSE:
  Exposes the formula engine, the compensation model and the payout
  forecast via REST API. Handles HTTP request/response, JSON serialization,
  and delegates to domain logic.

ENDPOINTS:
  Roles & KPIs:
    GET    /api/roles                         List roles
    POST   /api/roles                         Create role
    GET    /api/roles/{id}                    Get role
    PUT    /api/roles/{id}                    Update role
    DELETE /api/roles/{id}                    Delete role (cascades)
    GET    /api/roles/{id}/kpis               List KPIs with weight check
    POST   /api/roles/{id}/kpis               Create KPI
    GET    /api/kpis/{id}                     Get KPI
    PUT    /api/kpis/{id}                     Update KPI
    DELETE /api/kpis/{id}                     Delete KPI

  Formulas:
    GET    /api/roles/{id}/kpis/{kpiID}/formula   Stored formula
    PUT    /api/roles/{id}/kpis/{kpiID}/formula   Validate and store
    DELETE /api/roles/{id}/kpis/{kpiID}/formula   Remove (KPI falls back)
    GET    /api/formulas/default                  Preset for a formula type
    POST   /api/evaluate                          Evaluate an unsaved formula

  Users:
    GET    /api/users                         List users
    POST   /api/users                         Create user
    GET    /api/users/{id}                    Get user
    PUT    /api/users/{id}/actuals            Record actuals
    GET    /api/users/{id}/dashboard          Projected bonus
    POST   /api/users/{id}/dashboard/simulate Projected bonus with overrides

  Forecast:
    GET    /api/positions                     List positions
    POST   /api/positions                     Create position
    DELETE /api/positions/{id}                Delete position
    POST   /api/forecast                      Run a forecast now
    GET    /api/forecast/runs                 Forecast history
    GET    /api/forecast/schedule             Scheduled forecast status

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: Database access
  - Factory: Stored JSON to bonus.Formula conversion
  - Projector/Forecaster: Compensation model
  - formulaCache: Parsed formulas per (role, KPI), invalidated on write

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid formula, bad references
  - 404: Resource not found
  - 409: Create with an ID that already exists
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - scheduler.go: Scheduled forecasts
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	goCache "github.com/patrickmn/go-cache"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/warp/kpi-bonus/bonus"
	"github.com/warp/kpi-bonus/compensation"
	"github.com/warp/kpi-bonus/factory"
	"github.com/warp/kpi-bonus/metrics"
	"github.com/warp/kpi-bonus/store/sqlite"
	"go.uber.org/zap"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store             *sqlite.Store
	Factory           *factory.FormulaFactory
	Projector         compensation.Projector
	Logger            *zap.Logger
	DefaultMultiplier decimal.Decimal
	Scheduler         *ForecastScheduler // optional, reported by GetForecastSchedule

	formulaCache *goCache.Cache
	cacheMu      sync.Mutex
	cacheGen     uint64 // bumped by every formula invalidation

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// cachedFormula also records "no formula" so fallback KPIs skip the store.
type cachedFormula struct {
	formula    bonus.Formula
	configured bool
}

// NewHandler creates a new handler. formulaTTL <= 0 disables expiry.
func NewHandler(store *sqlite.Store, logger *zap.Logger, formulaTTL time.Duration) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	expiry := goCache.NoExpiration
	if formulaTTL > 0 {
		expiry = formulaTTL
	}
	return &Handler{
		Store:             store,
		Factory:           factory.NewFormulaFactory(),
		Logger:            logger,
		DefaultMultiplier: decimal.NewFromInt(100),
		formulaCache:      goCache.New(expiry, 2*expiry),
	}
}

func formulaKey(roleID, kpiID string) string {
	return roleID + "/" + kpiID
}

// roleFormulas returns the parsed formulas of a role keyed by KPI ID; KPIs
// without a formula are absent. Cache misses are filled from one query for
// the whole role. Unparseable stored JSON is logged and treated as absent so
// a single bad row does not take the dashboard down.
func (h *Handler) roleFormulas(ctx context.Context, roleID string, kpis []compensation.KPI) (compensation.Formulas, error) {
	formulas := make(compensation.Formulas, len(kpis))
	var missing []string
	for _, k := range kpis {
		v, ok := h.formulaCache.Get(formulaKey(roleID, k.ID))
		if !ok {
			missing = append(missing, k.ID)
			continue
		}
		if c := v.(cachedFormula); c.configured {
			formulas[k.ID] = c.formula
		}
	}
	if len(missing) == 0 {
		return formulas, nil
	}

	gen := h.cacheGeneration()
	recs, err := h.Store.ListFormulasByRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	byKPI := lo.KeyBy(recs, func(rec sqlite.FormulaRecord) string { return rec.KPIID })

	for _, kpiID := range missing {
		entry := cachedFormula{}
		if rec, ok := byKPI[kpiID]; ok {
			f, err := h.Factory.ParseFormula([]byte(rec.ConfigJSON))
			if err != nil {
				h.Logger.Warn("skipping unparseable formula",
					zap.String("role_id", roleID), zap.String("kpi_id", kpiID), zap.Error(err))
			} else {
				entry = cachedFormula{formula: f, configured: true}
				formulas[kpiID] = f
			}
		}
		h.fillFormula(formulaKey(roleID, kpiID), gen, entry)
	}
	return formulas, nil
}

// cacheGeneration is read before loading formulas from the store.
func (h *Handler) cacheGeneration() uint64 {
	h.cacheMu.Lock()
	defer h.cacheMu.Unlock()
	return h.cacheGen
}

// fillFormula caches a loaded entry unless a write invalidated the cache
// since gen was read; the loaded value may predate that write.
func (h *Handler) fillFormula(key string, gen uint64, entry cachedFormula) {
	h.cacheMu.Lock()
	defer h.cacheMu.Unlock()
	if gen != h.cacheGen {
		return
	}
	h.formulaCache.SetDefault(key, entry)
}

// invalidateFormula must be called after the store write has committed.
func (h *Handler) invalidateFormula(roleID, kpiID string) {
	h.cacheMu.Lock()
	defer h.cacheMu.Unlock()
	h.cacheGen++
	h.formulaCache.Delete(formulaKey(roleID, kpiID))
}

func (h *Handler) invalidateFormulas() {
	h.cacheMu.Lock()
	defer h.cacheMu.Unlock()
	h.cacheGen++
	h.formulaCache.Flush()
}

// rolePlan loads everything needed to project one person in a role.
func (h *Handler) rolePlan(ctx context.Context, roleID string) (compensation.RolePlan, error) {
	role, err := h.Store.GetRole(ctx, roleID)
	if err != nil {
		return compensation.RolePlan{}, err
	}
	if role == nil {
		return compensation.RolePlan{}, fmt.Errorf("role %s: %w", roleID, bonus.ErrRoleNotFound)
	}

	kpis, err := h.Store.ListKPIsByRole(ctx, roleID)
	if err != nil {
		return compensation.RolePlan{}, err
	}

	formulas, err := h.roleFormulas(ctx, roleID, kpis)
	if err != nil {
		return compensation.RolePlan{}, err
	}

	return compensation.RolePlan{Role: *role, KPIs: kpis, Formulas: formulas}, nil
}

// =============================================================================
// ROLE ENDPOINTS
// =============================================================================

// ListRoles returns all roles.
func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.Store.ListRoles(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list roles", err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(roles, func(role compensation.Role, _ int) RoleDTO {
		return toRoleDTO(role)
	}))
}

// GetRole returns one role.
func (h *Handler) GetRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.Store.GetRole(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get role", err)
		return
	}
	if role == nil {
		writeError(w, http.StatusNotFound, "Role not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toRoleDTO(*role))
}

// CreateRole creates a role.
func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req SaveRoleRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	role := compensation.Role{
		ID:              lo.Ternary(req.ID != "", req.ID, uuid.NewString()),
		Name:            req.Name,
		BaseSalary:      req.BaseSalary,
		BonusPercentage: req.BonusPercentage,
	}
	if err := h.Store.CreateRole(r.Context(), role); err != nil {
		writeDomainError(w, "Failed to create role", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRoleDTO(role))
}

// UpdateRole replaces a role's name, salary and bonus target.
func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req SaveRoleRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	existing, err := h.Store.GetRole(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get role", err)
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "Role not found", nil)
		return
	}

	role := compensation.Role{ID: id, Name: req.Name, BaseSalary: req.BaseSalary, BonusPercentage: req.BonusPercentage}
	if err := h.Store.SaveRole(r.Context(), role); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update role", err)
		return
	}
	writeJSON(w, http.StatusOK, toRoleDTO(role))
}

// DeleteRole deletes a role with its KPIs, formulas, users and positions.
func (h *Handler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.Store.DeleteRole(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete role", err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Role not found", nil)
		return
	}
	h.invalidateFormulas()
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// KPI ENDPOINTS
// =============================================================================

// ListRoleKPIs lists a role's KPIs and warns when weights do not sum to 100.
func (h *Handler) ListRoleKPIs(w http.ResponseWriter, r *http.Request) {
	roleID := chi.URLParam(r, "id")

	role, err := h.Store.GetRole(r.Context(), roleID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get role", err)
		return
	}
	if role == nil {
		writeError(w, http.StatusNotFound, "Role not found", nil)
		return
	}

	kpis, err := h.Store.ListKPIsByRole(r.Context(), roleID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list KPIs", err)
		return
	}

	total := compensation.TotalWeight(kpis)
	resp := RoleKPIsDTO{
		RoleID:      roleID,
		KPIs:        lo.Map(kpis, func(k compensation.KPI, _ int) KPIDTO { return toKPIDTO(k) }),
		TotalWeight: total,
	}
	if len(kpis) > 0 && !total.IsZero() && !total.Equal(hundred) {
		resp.Warning = fmt.Sprintf("KPI weights sum to %s%%, expected 100%%", total)
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateKPI adds a KPI to a role.
func (h *Handler) CreateKPI(w http.ResponseWriter, r *http.Request) {
	roleID := chi.URLParam(r, "id")
	var req SaveKPIRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	role, err := h.Store.GetRole(r.Context(), roleID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get role", err)
		return
	}
	if role == nil {
		writeError(w, http.StatusNotFound, "Role not found", nil)
		return
	}

	kpi := compensation.KPI{
		ID:          lo.Ternary(req.ID != "", req.ID, uuid.NewString()),
		RoleID:      roleID,
		Name:        req.Name,
		Description: req.Description,
		Unit:        req.Unit,
		Target:      req.Target,
		IsInverse:   req.IsInverse,
		Weight:      req.Weight,
	}
	if err := h.Store.CreateKPI(r.Context(), kpi); err != nil {
		writeDomainError(w, "Failed to create KPI", err)
		return
	}
	writeJSON(w, http.StatusCreated, toKPIDTO(kpi))
}

// GetKPI returns one KPI.
func (h *Handler) GetKPI(w http.ResponseWriter, r *http.Request) {
	kpi, err := h.Store.GetKPI(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get KPI", err)
		return
	}
	if kpi == nil {
		writeError(w, http.StatusNotFound, "KPI not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toKPIDTO(*kpi))
}

// UpdateKPI replaces a KPI's definition. The role cannot change.
func (h *Handler) UpdateKPI(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req SaveKPIRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	existing, err := h.Store.GetKPI(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get KPI", err)
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "KPI not found", nil)
		return
	}

	kpi := compensation.KPI{
		ID:          id,
		RoleID:      existing.RoleID,
		Name:        req.Name,
		Description: req.Description,
		Unit:        req.Unit,
		Target:      req.Target,
		IsInverse:   req.IsInverse,
		Weight:      req.Weight,
	}
	if err := h.Store.SaveKPI(r.Context(), kpi); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update KPI", err)
		return
	}
	writeJSON(w, http.StatusOK, toKPIDTO(kpi))
}

// DeleteKPI deletes a KPI and its formula and actuals.
func (h *Handler) DeleteKPI(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	kpi, err := h.Store.GetKPI(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get KPI", err)
		return
	}
	if kpi == nil {
		writeError(w, http.StatusNotFound, "KPI not found", nil)
		return
	}

	if _, err := h.Store.DeleteKPI(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete KPI", err)
		return
	}
	h.invalidateFormula(kpi.RoleID, id)
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// FORMULA ENDPOINTS
// =============================================================================

// kpiOfRole resolves the {id}/{kpiID} pair and checks the KPI belongs to
// the role. Writes the error response and returns nil on failure.
func (h *Handler) kpiOfRole(w http.ResponseWriter, r *http.Request) *compensation.KPI {
	roleID, kpiID := chi.URLParam(r, "id"), chi.URLParam(r, "kpiID")

	kpi, err := h.Store.GetKPI(r.Context(), kpiID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get KPI", err)
		return nil
	}
	if kpi == nil || kpi.RoleID != roleID {
		writeError(w, http.StatusNotFound, "KPI not found for role", nil)
		return nil
	}
	return kpi
}

// GetFormula returns the stored formula for (role, KPI).
func (h *Handler) GetFormula(w http.ResponseWriter, r *http.Request) {
	kpi := h.kpiOfRole(w, r)
	if kpi == nil {
		return
	}

	rec, err := h.Store.GetFormula(r.Context(), kpi.RoleID, kpi.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get formula", err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "No formula configured, fallback ratio applies", nil)
		return
	}

	var fj factory.FormulaJSON
	if err := json.Unmarshal([]byte(rec.ConfigJSON), &fj); err != nil {
		writeError(w, http.StatusInternalServerError, "Stored formula is corrupt", err)
		return
	}

	writeJSON(w, http.StatusOK, FormulaDTO{
		RoleID:    rec.RoleID,
		KPIID:     rec.KPIID,
		Version:   rec.Version,
		UpdatedAt: rec.UpdatedAt.Format(time.RFC3339),
		Formula:   fj,
	})
}

// PutFormula validates and stores a formula. The body is the formula
// document itself in its stored shape.
func (h *Handler) PutFormula(w http.ResponseWriter, r *http.Request) {
	kpi := h.kpiOfRole(w, r)
	if kpi == nil {
		return
	}

	raw, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.Factory.ValidateFormulaJSON(raw); err != nil {
		writeDomainError(w, "Invalid formula", err)
		return
	}

	formula, err := h.Factory.ParseFormula(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid formula", err)
		return
	}
	// Store the canonical shape: snake_case keys, alias resolved.
	canonical, err := h.Factory.MarshalFormula(formula)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encode formula", err)
		return
	}

	version, err := h.Store.SaveFormula(r.Context(), kpi.RoleID, kpi.ID, string(canonical))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save formula", err)
		return
	}
	h.invalidateFormula(kpi.RoleID, kpi.ID)

	h.Logger.Info("formula saved",
		zap.String("role_id", kpi.RoleID), zap.String("kpi_id", kpi.ID), zap.Int("version", version))

	writeJSON(w, http.StatusOK, FormulaDTO{
		RoleID:  kpi.RoleID,
		KPIID:   kpi.ID,
		Version: version,
		Formula: h.Factory.ToJSON(formula),
	})
}

// DeleteFormula removes the formula; the KPI falls back to the ratio bonus.
func (h *Handler) DeleteFormula(w http.ResponseWriter, r *http.Request) {
	kpi := h.kpiOfRole(w, r)
	if kpi == nil {
		return
	}

	deleted, err := h.Store.DeleteFormula(r.Context(), kpi.RoleID, kpi.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete formula", err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "No formula configured", nil)
		return
	}
	h.invalidateFormula(kpi.RoleID, kpi.ID)
	w.WriteHeader(http.StatusNoContent)
}

// DefaultFormula returns the preset for a formula type, for the editor.
// Query: type, target, stretch.
func (h *Handler) DefaultFormula(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	target, err := queryDecimal(q.Get("target"), decimal.NewFromInt(100))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid target", err)
		return
	}
	stretch, err := queryDecimal(q.Get("stretch"), target)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid stretch", err)
		return
	}

	formulaType := bonus.FormulaType(lo.Ternary(q.Get("type") != "", q.Get("type"), string(bonus.FormulaTiered)))
	writeJSON(w, http.StatusOK, h.Factory.ToJSON(compensation.DefaultFormulaFor(formulaType, target, stretch)))
}

// Evaluate runs the engine on an unsaved formula, or the fallback ratio
// when no formula is given.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := req.Validate(); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "Validation failed", "invalid_input", err)
		return
	}

	var res bonus.Result
	if req.HasFormula() {
		if err := h.Factory.ValidateFormulaJSON(req.Formula); err != nil {
			writeDomainError(w, "Invalid formula", err)
			return
		}
		formula, err := h.Factory.ParseFormula(req.Formula)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid formula", err)
			return
		}
		res = h.Projector.Engine.Evaluate(req.Actual, formula, req.AvailableBudget)
	} else {
		res = bonus.Fallback(bonus.KPIPerformance{
			Target:    *req.Target,
			Actual:    req.Actual,
			IsInverse: req.IsInverse,
		}, req.AvailableBudget)
	}

	metrics.ObserveResult(res)
	writeJSON(w, http.StatusOK, toResultDTO(res))
}

// =============================================================================
// USER ENDPOINTS
// =============================================================================

// ListUsers returns all users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Store.ListUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list users", err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(users, func(u sqlite.User, _ int) UserDTO { return toUserDTO(u) }))
}

// CreateUser creates a user in a role.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	role, err := h.Store.GetRole(r.Context(), req.RoleID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get role", err)
		return
	}
	if role == nil {
		writeErrorCode(w, http.StatusBadRequest, "Unknown role", "invalid_reference",
			fmt.Errorf("role %s: %w", req.RoleID, bonus.ErrRoleNotFound))
		return
	}

	user := sqlite.User{
		ID:     lo.Ternary(req.ID != "", req.ID, uuid.NewString()),
		Name:   req.Name,
		Email:  req.Email,
		RoleID: req.RoleID,
	}
	if err := h.Store.CreateUser(r.Context(), user); err != nil {
		writeDomainError(w, "Failed to create user", err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(user))
}

// GetUser returns one user.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.Store.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get user", err)
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "User not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(*user))
}

// userPlan loads a user and the plan of their role.
func (h *Handler) userPlan(ctx context.Context, userID string) (*sqlite.User, compensation.RolePlan, error) {
	user, err := h.Store.GetUser(ctx, userID)
	if err != nil {
		return nil, compensation.RolePlan{}, err
	}
	if user == nil {
		return nil, compensation.RolePlan{}, fmt.Errorf("user %s: %w", userID, bonus.ErrUserNotFound)
	}
	plan, err := h.rolePlan(ctx, user.RoleID)
	return user, plan, err
}

// checkKPIsBelong rejects actuals for KPIs outside the role.
func checkKPIsBelong(plan compensation.RolePlan, actuals map[string]decimal.Decimal) error {
	known := lo.SliceToMap(plan.KPIs, func(k compensation.KPI) (string, bool) { return k.ID, true })
	unknown := lo.Filter(lo.Keys(actuals), func(id string, _ int) bool { return !known[id] })
	if len(unknown) > 0 {
		return fmt.Errorf("%w: %v not in role %s", bonus.ErrKPINotFound, unknown, plan.Role.ID)
	}
	return nil
}

// SaveActuals records actuals for a user.
func (h *Handler) SaveActuals(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	var req ActualsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	_, plan, err := h.userPlan(r.Context(), userID)
	if err != nil {
		writeDomainError(w, "Failed to load user", err)
		return
	}
	if err := checkKPIsBelong(plan, req.Actuals); err != nil {
		writeError(w, http.StatusBadRequest, "Unknown KPI", err)
		return
	}

	if err := h.Store.SaveActuals(r.Context(), userID, req.Actuals); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save actuals", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetDashboard projects the user's bonus from recorded actuals. KPIs
// without an actual are shown at target.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	h.dashboard(w, r, nil)
}

// SimulateDashboard projects with slider overrides on top of the recorded
// actuals. Nothing is persisted.
func (h *Handler) SimulateDashboard(w http.ResponseWriter, r *http.Request) {
	var req ActualsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	h.dashboard(w, r, req.Actuals)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request, overrides compensation.Actuals) {
	userID := chi.URLParam(r, "id")

	_, plan, err := h.userPlan(r.Context(), userID)
	if err != nil {
		writeDomainError(w, "Failed to load user", err)
		return
	}
	if overrides != nil {
		if err := checkKPIsBelong(plan, overrides); err != nil {
			writeError(w, http.StatusBadRequest, "Unknown KPI", err)
			return
		}
	}

	actuals, err := h.Store.GetActuals(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load actuals", err)
		return
	}
	if overrides != nil {
		actuals = compensation.WithOverrides(actuals, overrides)
	}

	proj := h.Projector.Project(plan.Role, plan.KPIs, actuals, plan.Formulas)
	for _, kp := range proj.KPIs {
		metrics.ObserveResult(kp.Result)
	}

	writeJSON(w, http.StatusOK, toDashboardDTO(userID, proj, overrides != nil))
}

// =============================================================================
// POSITION & FORECAST ENDPOINTS
// =============================================================================

// ListPositions returns all positions.
func (h *Handler) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.Store.ListPositions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list positions", err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(positions, func(p compensation.Position, _ int) PositionDTO {
		return PositionDTO{ID: p.ID, RoleID: p.RoleID, Title: p.Title, Headcount: p.Headcount}
	}))
}

// CreatePosition creates a position.
func (h *Handler) CreatePosition(w http.ResponseWriter, r *http.Request) {
	var req CreatePositionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	role, err := h.Store.GetRole(r.Context(), req.RoleID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get role", err)
		return
	}
	if role == nil {
		writeErrorCode(w, http.StatusBadRequest, "Unknown role", "invalid_reference",
			fmt.Errorf("role %s: %w", req.RoleID, bonus.ErrRoleNotFound))
		return
	}

	pos := compensation.Position{
		ID:        lo.Ternary(req.ID != "", req.ID, uuid.NewString()),
		RoleID:    req.RoleID,
		Title:     req.Title,
		Headcount: req.Headcount,
	}
	if err := h.Store.CreatePosition(r.Context(), pos); err != nil {
		writeDomainError(w, "Failed to create position", err)
		return
	}
	writeJSON(w, http.StatusCreated, PositionDTO{ID: pos.ID, RoleID: pos.RoleID, Title: pos.Title, Headcount: pos.Headcount})
}

// DeletePosition deletes a position.
func (h *Handler) DeletePosition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deleted, err := h.Store.DeletePosition(r.Context(), id)
	if err == nil && !deleted {
		err = fmt.Errorf("position %s: %w", id, bonus.ErrPositionNotFound)
	}
	if err != nil {
		writeDomainError(w, "Failed to delete position", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Forecast runs and records a forecast now.
func (h *Handler) Forecast(w http.ResponseWriter, r *http.Request) {
	var req ForecastRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}
	if err := req.Validate(); err != nil {
		writeDomainError(w, "Validation failed", err)
		return
	}

	multiplier := h.DefaultMultiplier
	if req.Multiplier != nil {
		multiplier = *req.Multiplier
	}

	result, run, err := h.RunForecast(r.Context(), TriggerManual, multiplier, req.AssumedActuals)
	if err != nil {
		writeDomainError(w, "Forecast failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toForecastDTO(run.ID, result))
}

// ListForecastRuns returns recent forecast runs. Query: limit.
func (h *Handler) ListForecastRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	runs, err := h.Store.ListForecastRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list forecast runs", err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(runs, func(run sqlite.ForecastRun, _ int) ForecastRunDTO {
		return toForecastRunDTO(run)
	}))
}

// GetForecastSchedule reports whether scheduled forecasts run and when the
// next one is due.
func (h *Handler) GetForecastSchedule(w http.ResponseWriter, r *http.Request) {
	s := h.Scheduler
	if s == nil || !s.Enabled {
		writeJSON(w, http.StatusOK, ForecastScheduleDTO{})
		return
	}

	dto := ForecastScheduleDTO{Enabled: true, Schedule: s.Schedule, Multiplier: &s.Multiplier}
	if next := s.NextRunTime(); !next.IsZero() {
		dto.NextRun = next.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, dto)
}

// Forecast triggers.
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
)

// RunForecast computes the payout forecast over all positions and records
// the run, successful or not. Shared by the API and the scheduler.
func (h *Handler) RunForecast(ctx context.Context, trigger string, multiplier decimal.Decimal, assumed compensation.Actuals) (bonus.ForecastResult, sqlite.ForecastRun, error) {
	run := sqlite.ForecastRun{
		ID:         uuid.NewString(),
		Trigger:    trigger,
		Multiplier: multiplier,
		StartedAt:  time.Now().UTC(),
	}

	result, err := h.forecast(ctx, multiplier, assumed)
	run.CompletedAt = time.Now().UTC()
	if err != nil {
		run.Status = "failed"
		run.Error = err.Error()
	} else {
		run.Status = "completed"
		run.Gross = result.Gross
		run.TotalPayout = result.TotalPayout
		run.Headcount = result.TotalHeadcount
		metrics.ForecastTotalPayout.Set(result.TotalPayout.InexactFloat64())
	}
	metrics.ForecastRuns.WithLabelValues(trigger, run.Status).Inc()

	if saveErr := h.Store.SaveForecastRun(ctx, run); saveErr != nil {
		h.Logger.Error("failed to record forecast run", zap.String("run_id", run.ID), zap.Error(saveErr))
	}

	if err != nil {
		h.Logger.Warn("forecast failed", zap.String("run_id", run.ID), zap.String("trigger", trigger), zap.Error(err))
		return bonus.ForecastResult{}, run, err
	}

	h.Logger.Info("forecast completed",
		zap.String("run_id", run.ID),
		zap.String("trigger", trigger),
		zap.String("total_payout", result.TotalPayout.StringFixed(2)),
		zap.Int("headcount", result.TotalHeadcount))
	return result, run, nil
}

func (h *Handler) forecast(ctx context.Context, multiplier decimal.Decimal, assumed compensation.Actuals) (bonus.ForecastResult, error) {
	positions, err := h.Store.ListPositions(ctx)
	if err != nil {
		return bonus.ForecastResult{}, err
	}

	plans := make(map[string]compensation.RolePlan)
	for _, roleID := range lo.Uniq(lo.Map(positions, func(p compensation.Position, _ int) string { return p.RoleID })) {
		plan, err := h.rolePlan(ctx, roleID)
		if err != nil {
			return bonus.ForecastResult{}, err
		}
		plans[roleID] = plan
	}

	return compensation.Forecaster{Projector: h.Projector}.Forecast(compensation.ForecastInput{
		Positions:  positions,
		Plans:      plans,
		Assumed:    assumed,
		Multiplier: multiplier,
	})
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports whether the database is reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

type validatable interface {
	Validate() error
}

// decodeAndValidate decodes the JSON body into req and validates it,
// writing a 400 on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, req validatable) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := req.Validate(); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "Validation failed", "validation_failed", err)
		return false
	}
	return true
}

func readBody(r *http.Request) ([]byte, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func queryDecimal(v string, def decimal.Decimal) (decimal.Decimal, error) {
	if v == "" {
		return def, nil
	}
	return decimal.NewFromString(v)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	writeErrorCode(w, status, message, "", err)
}

func writeErrorCode(w http.ResponseWriter, status int, message, code string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain sentinels to HTTP status.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	var rangeErr *bonus.RangeOrderError
	var schemaErr *bonus.SchemaError

	switch {
	case bonus.IsNotFound(err):
		writeErrorCode(w, http.StatusNotFound, message, "not_found", err)
	case bonus.IsConflict(err):
		writeErrorCode(w, http.StatusConflict, message, "conflict", err)
	case errors.As(err, &rangeErr):
		writeErrorCode(w, http.StatusBadRequest, message, "invalid_range", err)
	case errors.As(err, &schemaErr):
		writeErrorCode(w, http.StatusBadRequest, message, "invalid_formula", err)
	case bonus.IsClientError(err):
		writeErrorCode(w, http.StatusBadRequest, message, "invalid_input", err)
	case sqlite.IsForeignKeyError(err):
		writeErrorCode(w, http.StatusBadRequest, message, "invalid_reference", err)
	default:
		writeErrorCode(w, http.StatusInternalServerError, message, "internal", err)
	}
}
