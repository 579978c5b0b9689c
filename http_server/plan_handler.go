package http_server

import (
	"context"
	"net/http"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/danthegoodman1/icescan/listing"
	"github.com/danthegoodman1/icescan/scan"
	"github.com/danthegoodman1/icescan/stats"
	"github.com/danthegoodman1/icescan/utils"
	"github.com/rs/zerolog"
)

type (
	PlanReqBody struct {
		Partitions             []string `json:"partitions"`
		Columns                []string `json:"columns"`
		Limit                  *int64   `json:"limit" validate:"omitempty,gte=0"`
		TargetPartitions       *int     `json:"target_partitions" validate:"omitempty,gte=1"`
		RepartitionFileMinSize *int64   `json:"repartition_file_min_size" validate:"omitempty,gte=0"`
		SplitByStatistics      bool     `json:"split_by_statistics"`
	}

	PlanColumn struct {
		Name     string `json:"name"`
		Type     string `json:"type"`
		Nullable bool   `json:"nullable"`
	}

	PlanResponse struct {
		PlanID       string       `json:"plan_id"`
		Schema       []PlanColumn `json:"schema"`
		NumRows      *PlanCount   `json:"num_rows,omitempty"`
		ByteSize     *PlanCount   `json:"byte_size,omitempty"`
		Orderings    []string     `json:"orderings"`
		Constraints  []string     `json:"constraints"`
		FileGroups   [][]string   `json:"file_groups"`
		Packed       bool         `json:"packed"`
		PackingError *string      `json:"packing_error,omitempty"`
		Description  string       `json:"description"`
	}

	PlanCount struct {
		Value int64 `json:"value"`
		Exact bool  `json:"exact"`
	}

	ScanResponse struct {
		PlanID  string   `json:"plan_id"`
		Columns []string `json:"columns"`
		Rows    [][]any  `json:"rows"`
		NumRows int      `json:"num_rows"`
		TimeMS  int64    `json:"time_ms"`
	}
)

func (s *HTTPServer) scanRequest(c *CustomContext) (listing.Request, error) {
	var reqBody PlanReqBody
	if err := ValidateRequest(c, &reqBody); err != nil {
		return listing.Request{}, err
	}
	return listing.Request{
		Table:                  c.Param("table"),
		Partitions:             reqBody.Partitions,
		Columns:                reqBody.Columns,
		Limit:                  reqBody.Limit,
		TargetPartitions:       utils.Deref(reqBody.TargetPartitions, s.Scan.TargetPartitions),
		RepartitionFileMinSize: utils.Deref(reqBody.RepartitionFileMinSize, s.Scan.RepartitionFileMinSize),
		SplitByStatistics:      reqBody.SplitByStatistics,
	}, nil
}

func count(p stats.Precision[int64]) *PlanCount {
	v, ok := p.Value()
	if !ok {
		return nil
	}
	return &PlanCount{Value: v, Exact: p.IsExact()}
}

func describe(planID string, plan listing.Plan) PlanResponse {
	schema, constraints, st, orderings := plan.Config.Project()
	res := PlanResponse{
		PlanID:      planID,
		Schema:      make([]PlanColumn, 0, schema.NumFields()),
		NumRows:     count(st.NumRows),
		ByteSize:    count(st.TotalByteSize),
		Orderings:   make([]string, 0, len(orderings)),
		Constraints: make([]string, 0, len(constraints)),
		FileGroups:  make([][]string, 0, len(plan.Config.FileGroups)),
		Packed:      plan.Packed,
		Description: plan.Config.String(),
	}
	for _, f := range schema.Fields() {
		res.Schema = append(res.Schema, PlanColumn{Name: f.Name, Type: f.Type.String(), Nullable: f.Nullable})
	}
	for _, o := range orderings {
		res.Orderings = append(res.Orderings, o.String())
	}
	for _, con := range constraints {
		res.Constraints = append(res.Constraints, con.String())
	}
	for _, g := range plan.Config.FileGroups {
		files := make([]string, len(g))
		for i, f := range g {
			files[i] = f.String()
		}
		res.FileGroups = append(res.FileGroups, files)
	}
	if plan.PackingError != nil {
		res.PackingError = utils.Ptr(plan.PackingError.Error())
	}
	return res
}

func (s *HTTPServer) PlanHandler(c *CustomContext) error {
	req, err := s.scanRequest(c)
	if err != nil {
		return err
	}
	plan, err := listing.BuildConfig(c.Request().Context(), s.MetaStore, s.Registry, req)
	if err != nil {
		return c.TableError(err, "error planning scan")
	}
	planID := utils.GenRandomID("plan_")
	zerolog.Ctx(c.Request().Context()).Debug().Str("planID", planID).Int("partitions", plan.Config.OutputPartitioning()).Msg("planned scan")
	return c.JSON(http.StatusOK, describe(planID, plan))
}

func (s *HTTPServer) ScanHandler(c *CustomContext) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), time.Second*60)
	defer cancel()
	start := time.Now()

	req, err := s.scanRequest(c)
	if err != nil {
		return err
	}
	plan, err := listing.BuildConfig(ctx, s.MetaStore, s.Registry, req)
	if err != nil {
		return c.TableError(err, "error planning scan")
	}
	planID := utils.GenRandomID("plan_")

	env := scan.Env{Registry: s.Registry, BatchSize: s.Scan.BatchSize}
	batches, err := scan.Collect(ctx, plan.Config, env, s.Scan.PoolSize)
	if err != nil {
		return c.TableError(err, "error scanning table")
	}

	schema := plan.Config.ProjectedSchema()
	res := ScanResponse{
		PlanID:  planID,
		Columns: make([]string, schema.NumFields()),
		Rows:    [][]any{},
	}
	for i, f := range schema.Fields() {
		res.Columns[i] = f.Name
	}
	for _, partition := range batches {
		for _, rec := range partition {
			res.Rows = append(res.Rows, rows(rec)...)
			rec.Release()
		}
	}
	res.NumRows = len(res.Rows)
	res.TimeMS = time.Since(start).Milliseconds()
	zerolog.Ctx(ctx).Debug().Str("planID", planID).Int("rows", res.NumRows).Int64("timeMS", res.TimeMS).Msg("scanned table")
	return c.JSON(http.StatusOK, res)
}

func rows(rec arrow.Record) [][]any {
	out := make([][]any, rec.NumRows())
	for r := range out {
		row := make([]any, rec.NumCols())
		for c := range row {
			col := rec.Column(c)
			if col.IsNull(r) {
				continue
			}
			row[c] = col.GetOneForMarshal(r)
		}
		out[r] = row
	}
	return out
}
