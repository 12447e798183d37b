package instrument

import (
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"form-engine/internal/store"
)

var eventSelect = "SELECT " + strings.Join(eventColumns, ", ") + ", created_at FROM _events"

// filterColumns are the _events columns List accepts as exact-match query filters.
var filterColumns = []string{"kind", "form_key", "node_key", "rule_key", "event_name", "action_name", "trace_id", "user_id", "status"}

// EventHandler exposes REST endpoints for querying and emitting events.
type EventHandler struct {
	db      *sql.DB
	dialect store.Dialect
}

// NewEventHandler creates an EventHandler backed by the given db and dialect.
func NewEventHandler(db *sql.DB, dialect store.Dialect) *EventHandler {
	return &EventHandler{db: db, dialect: dialect}
}

// RegisterEventRoutes mounts the event endpoints on r. Emitting needs authMW;
// reading also needs admin.
func RegisterEventRoutes(r fiber.Router, h *EventHandler, authMW, admin fiber.Handler) {
	r.Post("/_events", authMW, h.Emit)
	r.Get("/_events", authMW, admin, h.List)
	r.Get("/_events/trace/:traceId", authMW, admin, h.GetTrace)
	r.Get("/_events/stats", authMW, admin, h.GetStats)
}

// Emit handles POST /_events: a renderer reports a UI event (focus, blur,
// page change) on a form node so it lands in the same trace as engine work.
func (h *EventHandler) Emit(c *fiber.Ctx) error {
	var body struct {
		Event  string         `json:"event_name"`
		Form   string         `json:"form_key"`
		Node   string         `json:"node_key"`
		Detail map[string]any `json:"detail"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": fiber.Map{"code": "INVALID_PAYLOAD", "message": "Invalid JSON body"}})
	}
	if body.Event == "" || body.Form == "" {
		return c.Status(422).JSON(fiber.Map{"error": fiber.Map{"code": "VALIDATION_FAILED", "message": "event_name and form_key are required"}})
	}

	Mark(c.UserContext(), KindClient, Attrs{Form: body.Form, Node: body.Node, Event: body.Event}, body.Detail)
	return c.JSON(fiber.Map{"data": fiber.Map{"status": "ok", "trace_id": TraceID(c.UserContext())}})
}

// filters builds the WHERE clause shared by List and GetStats.
func (h *EventHandler) filters(c *fiber.Ctx, pb store.ParamBuilder, columns ...string) []string {
	var conditions []string
	for _, col := range columns {
		if v := c.Query(col); v != "" {
			conditions = append(conditions, fmt.Sprintf("%s = %s", col, pb.Add(v)))
		}
	}
	if v := c.Query("from"); v != "" {
		conditions = append(conditions, fmt.Sprintf("created_at >= %s", pb.Add(v)))
	}
	if v := c.Query("to"); v != "" {
		conditions = append(conditions, fmt.Sprintf("created_at <= %s", pb.Add(v)))
	}
	return conditions
}

// List handles GET /_events with optional column filters and pagination.
func (h *EventHandler) List(c *fiber.Ctx) error {
	ctx := c.UserContext()
	pb := h.dialect.NewParamBuilder()
	conditions := h.filters(c, pb, filterColumns...)

	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(c.Query("per_page", "50"))
	if perPage < 1 {
		perPage = 50
	}
	if perPage > 100 {
		perPage = 100
	}
	offset := (page - 1) * perPage

	orderBy := "created_at DESC"
	if c.Query("sort", "-created_at") == "created_at" {
		orderBy = "created_at ASC"
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	countRow, err := store.QueryRow(ctx, h.db, "SELECT COUNT(*) as count FROM _events"+whereClause, pb.Params()...)
	if err != nil {
		return fmt.Errorf("count events: %w", err)
	}
	total := toInt(countRow["count"])

	limitPh, offsetPh := pb.Add(perPage), pb.Add(offset)
	dataSQL := fmt.Sprintf("%s%s ORDER BY %s LIMIT %s OFFSET %s", eventSelect, whereClause, orderBy, limitPh, offsetPh)
	rows, err := store.QueryRows(ctx, h.db, dataSQL, pb.Params()...)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	if rows == nil {
		rows = []store.Row{}
	}

	return c.JSON(fiber.Map{
		"data": rows,
		"pagination": fiber.Map{
			"page":     page,
			"per_page": perPage,
			"total":    total,
		},
	})
}

// GetTrace handles GET /_events/trace/:traceId and returns the span tree.
func (h *EventHandler) GetTrace(c *fiber.Ctx) error {
	ctx := c.UserContext()
	traceID := c.Params("traceId")

	pb := h.dialect.NewParamBuilder()
	rows, err := store.QueryRows(ctx, h.db,
		fmt.Sprintf("%s WHERE trace_id = %s ORDER BY created_at ASC", eventSelect, pb.Add(traceID)),
		pb.Params()...,
	)
	if err != nil {
		return fmt.Errorf("get trace: %w", err)
	}
	if len(rows) == 0 {
		return c.Status(404).JSON(fiber.Map{"error": fiber.Map{"code": "NOT_FOUND", "message": "Trace not found: " + traceID}})
	}

	children := make(map[string][]store.Row, len(rows))
	var rootSpan store.Row
	for _, row := range rows {
		parentID := row.String("parent_span_id")
		if parentID == "" {
			if rootSpan == nil {
				rootSpan = row
			}
			continue
		}
		children[parentID] = append(children[parentID], row)
	}
	for _, row := range rows {
		spanID := row.String("span_id")
		kids := children[spanID]
		if kids == nil {
			kids = []store.Row{}
		}
		row["children"] = kids
	}
	if rootSpan == nil {
		rootSpan = rows[0]
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"trace_id":          traceID,
			"root_span":         rootSpan,
			"spans":             rows,
			"total_duration_ms": rootSpan["duration_ms"],
		},
	})
}

// GetStats handles GET /_events/stats: latency and failures per span kind,
// and the rules that rejected values most often.
func (h *EventHandler) GetStats(c *fiber.Ctx) error {
	ctx := c.UserContext()
	pb := h.dialect.NewParamBuilder()
	conditions := append([]string{"duration_ms IS NOT NULL"}, h.filters(c, pb, "form_key")...)

	rows, err := store.QueryRows(ctx, h.db,
		"SELECT kind, rule_key, duration_ms, status FROM _events WHERE "+strings.Join(conditions, " AND "),
		pb.Params()...)
	if err != nil {
		return fmt.Errorf("event stats: %w", err)
	}

	type agg struct {
		durations []float64
		failures  int
	}
	byKind := map[string]*agg{}
	rejections := map[string]int{}
	var all []float64
	totalFailures := 0
	for _, row := range rows {
		kind := row.String("kind")
		a := byKind[kind]
		if a == nil {
			a = &agg{}
			byKind[kind] = a
		}
		d := toFloat(row["duration_ms"])
		a.durations = append(a.durations, d)
		all = append(all, d)
		switch Status(row.String("status")) {
		case StatusError:
			a.failures++
			totalFailures++
		case StatusInvalid:
			rejections[row.String("rule_key")]++
		}
	}

	kinds := make([]fiber.Map, 0, len(byKind))
	for name, a := range byKind {
		kinds = append(kinds, fiber.Map{
			"kind":            name,
			"count":           len(a.durations),
			"avg_duration_ms": mean(a.durations),
			"p95_duration_ms": percentile(a.durations, 0.95),
			"error_count":     a.failures,
		})
	}
	sort.Slice(kinds, func(i, j int) bool {
		return kinds[i]["count"].(int) > kinds[j]["count"].(int)
	})

	rejected := make([]fiber.Map, 0, len(rejections))
	for rule, n := range rejections {
		rejected = append(rejected, fiber.Map{"rule_key": rule, "count": n})
	}
	sort.Slice(rejected, func(i, j int) bool {
		ci, cj := rejected[i]["count"].(int), rejected[j]["count"].(int)
		if ci != cj {
			return ci > cj
		}
		return rejected[i]["rule_key"].(string) < rejected[j]["rule_key"].(string)
	})

	errorRate := 0.0
	if len(all) > 0 {
		errorRate = math.Round(float64(totalFailures)/float64(len(all))*10000) / 10000
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"total_spans":    len(all),
			"avg_latency_ms": mean(all),
			"p95_latency_ms": percentile(all, 0.95),
			"error_rate":     errorRate,
			"by_kind":        kinds,
			"rejected_rules": rejected,
		},
	})
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func percentile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// toInt safely converts various numeric types to int.
func toInt(v any) int {
	switch val := v.(type) {
	case int:
		return val
	case int32:
		return int(val)
	case int64:
		return int(val)
	case float64:
		return int(val)
	case string:
		n, _ := strconv.Atoi(val)
		return n
	default:
		return 0
	}
}

// toFloat safely converts various numeric types to float64.
func toFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case float32:
		return float64(val)
	case int64:
		return float64(val)
	case int:
		return float64(val)
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	default:
		return 0
	}
}
