package collaborators

import (
	"context"

	server "gamesession/server"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer names every span after the collaborator method it wraps
// (SPEC_FULL.md §11): collaborators are RPC-shaped in production even when
// backed by the in-memory fakes in this package, so the same boundary the
// teacher never had (it never calls out to another service) is exactly
// where the rest of the retrieval pack reaches for OpenTelemetry. Costs
// nothing with no TracerProvider configured: the global default is a
// no-op.
var tracer trace.Tracer = otel.Tracer("gamesession/collaborators")

func finish(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	return err
}

// TracedMapService wraps a server.MapService, tracing each call.
type TracedMapService struct {
	next server.MapService
}

func NewTracedMapService(next server.MapService) *TracedMapService {
	return &TracedMapService{next: next}
}

func (t *TracedMapService) FindMap(ctx context.Context, fileName string) (server.MapInfo, bool, error) {
	ctx, span := tracer.Start(ctx, "MapService.FindMap")
	info, ok, err := t.next.FindMap(ctx, fileName)
	_ = finish(span, err)
	return info, ok, err
}

func (t *TracedMapService) IncrementTimesPlayed(ctx context.Context, fileName string) error {
	ctx, span := tracer.Start(ctx, "MapService.IncrementTimesPlayed")
	return finish(span, t.next.IncrementTimesPlayed(ctx, fileName))
}

var _ server.MapService = (*TracedMapService)(nil)

// TracedModService wraps a server.ModService, tracing each call.
type TracedModService struct {
	next server.ModService
}

func NewTracedModService(next server.ModService) *TracedModService {
	return &TracedModService{next: next}
}

func (t *TracedModService) GetFeaturedMod(ctx context.Context, technicalName string) (server.FeaturedMod, bool, error) {
	ctx, span := tracer.Start(ctx, "ModService.GetFeaturedMod")
	mod, ok, err := t.next.GetFeaturedMod(ctx, technicalName)
	_ = finish(span, err)
	return mod, ok, err
}

func (t *TracedModService) IsLadder1v1(ctx context.Context, technicalName string) (bool, error) {
	ctx, span := tracer.Start(ctx, "ModService.IsLadder1v1")
	v, err := t.next.IsLadder1v1(ctx, technicalName)
	_ = finish(span, err)
	return v, err
}

func (t *TracedModService) IsCoop(ctx context.Context, technicalName string) (bool, error) {
	ctx, span := tracer.Start(ctx, "ModService.IsCoop")
	v, err := t.next.IsCoop(ctx, technicalName)
	_ = finish(span, err)
	return v, err
}

func (t *TracedModService) IsModRanked(ctx context.Context, technicalName string) (bool, error) {
	ctx, span := tracer.Start(ctx, "ModService.IsModRanked")
	v, err := t.next.IsModRanked(ctx, technicalName)
	_ = finish(span, err)
	return v, err
}

func (t *TracedModService) FindModVersionsByUIDs(ctx context.Context, uids []string) ([]server.ModVersionRef, error) {
	ctx, span := tracer.Start(ctx, "ModService.FindModVersionsByUIDs")
	refs, err := t.next.FindModVersionsByUIDs(ctx, uids)
	_ = finish(span, err)
	return refs, err
}

func (t *TracedModService) GetLatestFileVersions(ctx context.Context, technicalName string) (map[string]int, error) {
	ctx, span := tracer.Start(ctx, "ModService.GetLatestFileVersions")
	versions, err := t.next.GetLatestFileVersions(ctx, technicalName)
	_ = finish(span, err)
	return versions, err
}

var _ server.ModService = (*TracedModService)(nil)

// TracedRatingService wraps a server.RatingService, tracing each call.
type TracedRatingService struct {
	next server.RatingService
}

func NewTracedRatingService(next server.RatingService) *TracedRatingService {
	return &TracedRatingService{next: next}
}

func (t *TracedRatingService) UpdateRatings(ctx context.Context, stats []*server.GamePlayerStats, noTeamID int32, ratingType server.RatingType) error {
	ctx, span := tracer.Start(ctx, "RatingService.UpdateRatings")
	return finish(span, t.next.UpdateRatings(ctx, stats, noTeamID, ratingType))
}

func (t *TracedRatingService) InitLadder1v1Rating(ctx context.Context, playerID int32) (float64, float64, error) {
	ctx, span := tracer.Start(ctx, "RatingService.InitLadder1v1Rating")
	mean, deviation, err := t.next.InitLadder1v1Rating(ctx, playerID)
	_ = finish(span, err)
	return mean, deviation, err
}

func (t *TracedRatingService) InitGlobalRating(ctx context.Context, playerID int32) (float64, float64, error) {
	ctx, span := tracer.Start(ctx, "RatingService.InitGlobalRating")
	mean, deviation, err := t.next.InitGlobalRating(ctx, playerID)
	_ = finish(span, err)
	return mean, deviation, err
}

var _ server.RatingService = (*TracedRatingService)(nil)

// TracedStatsService wraps a server.ArmyStatisticsService, tracing each call.
type TracedStatsService struct {
	next server.ArmyStatisticsService
}

func NewTracedStatsService(next server.ArmyStatisticsService) *TracedStatsService {
	return &TracedStatsService{next: next}
}

func (t *TracedStatsService) Process(ctx context.Context, stats *server.GamePlayerStats, g *server.GameRecord) error {
	ctx, span := tracer.Start(ctx, "ArmyStatisticsService.Process")
	return finish(span, t.next.Process(ctx, stats, g))
}

var _ server.ArmyStatisticsService = (*TracedStatsService)(nil)

// TracedDivisionService wraps a server.DivisionService, tracing each call.
type TracedDivisionService struct {
	next server.DivisionService
}

func NewTracedDivisionService(next server.DivisionService) *TracedDivisionService {
	return &TracedDivisionService{next: next}
}

func (t *TracedDivisionService) PostResult(ctx context.Context, playerOne, playerTwo int32, winner *int32) error {
	ctx, span := tracer.Start(ctx, "DivisionService.PostResult")
	return finish(span, t.next.PostResult(ctx, playerOne, playerTwo, winner))
}

var _ server.DivisionService = (*TracedDivisionService)(nil)
