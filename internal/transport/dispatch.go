package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	server "gamesession/server"
)

// dispatch decodes msg.Data per msg.Type and invokes the matching Engine
// operation. Engine *server.RequestError results are reported back to the
// caller; unknown types and malformed payloads return plain errors, which
// the read loop logs without replying. Neither closes the connection.
func (h *Handler) dispatch(ctx context.Context, player *server.Player, msg clientMessage) error {
	switch msg.Type {
	case "createGame":
		var req struct {
			Title       string  `json:"title"`
			FeaturedMod string  `json:"featuredMod"`
			MapFileName string  `json:"mapFileName"`
			Password    string  `json:"password"`
			Visibility  string  `json:"visibility"`
			MinRating   *int    `json:"minRating"`
			MaxRating   *int    `json:"maxRating"`
			LobbyMode   string  `json:"lobbyMode"`
		}
		if err := unmarshal(msg.Data, &req); err != nil {
			return err
		}
		_, err := h.engine.CreateGame(ctx, player, server.CreateGameParams{
			Title:       req.Title,
			FeaturedMod: req.FeaturedMod,
			MapFileName: req.MapFileName,
			Password:    req.Password,
			Visibility:  server.Visibility(req.Visibility),
			MinRating:   req.MinRating,
			MaxRating:   req.MaxRating,
			LobbyMode:   req.LobbyMode,
		})
		return err

	case "joinGame":
		var req struct {
			GameID   int32  `json:"gameId"`
			Password string `json:"password"`
		}
		if err := unmarshal(msg.Data, &req); err != nil {
			return err
		}
		_, err := h.engine.JoinGame(ctx, req.GameID, req.Password, player)
		return err

	case "updatePlayerGameState":
		var req struct {
			State string `json:"state"`
		}
		if err := unmarshal(msg.Data, &req); err != nil {
			return err
		}
		return h.engine.UpdatePlayerGameState(ctx, player, server.PlayerGameState(req.State))

	case "updateGameOption":
		var req struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		}
		if err := unmarshal(msg.Data, &req); err != nil {
			return err
		}
		return h.engine.UpdateGameOption(ctx, player, req.Key, req.Value)

	case "updatePlayerOption":
		var req struct {
			PlayerID int32  `json:"playerId"`
			Key      string `json:"key"`
			Value    string `json:"value"`
		}
		if err := unmarshal(msg.Data, &req); err != nil {
			return err
		}
		return h.engine.UpdatePlayerOption(ctx, player, req.PlayerID, req.Key, req.Value)

	case "updateAIOption":
		var req struct {
			AIName string `json:"aiName"`
			Key    string `json:"key"`
			Value  string `json:"value"`
		}
		if err := unmarshal(msg.Data, &req); err != nil {
			return err
		}
		return h.engine.UpdateAIOption(ctx, player, req.AIName, req.Key, req.Value)

	case "clearSlot":
		var req struct {
			SlotID string `json:"slotId"`
		}
		if err := unmarshal(msg.Data, &req); err != nil {
			return err
		}
		return h.engine.ClearSlot(ctx, player, req.SlotID)

	case "updateGameMods":
		var req struct {
			UIDs []string `json:"uids"`
		}
		if err := unmarshal(msg.Data, &req); err != nil {
			return err
		}
		return h.engine.UpdateGameMods(ctx, player, req.UIDs)

	case "updateGameModsCount":
		var req struct {
			Count int `json:"count"`
		}
		if err := unmarshal(msg.Data, &req); err != nil {
			return err
		}
		return h.engine.UpdateGameModsCount(ctx, player, req.Count)

	case "reportDesync":
		return h.engine.ReportDesync(ctx, player)

	case "reportGameEnded":
		return h.engine.ReportGameEnded(ctx, player)

	case "reportArmyScore":
		var req struct {
			ArmyID int32 `json:"armyId"`
			Score  int   `json:"score"`
		}
		if err := unmarshal(msg.Data, &req); err != nil {
			return err
		}
		return h.engine.ReportArmyScore(ctx, player, req.ArmyID, req.Score)

	case "reportArmyOutcome":
		var req struct {
			ArmyID  int32  `json:"armyId"`
			Outcome string `json:"outcome"`
			Score   int    `json:"score"`
		}
		if err := unmarshal(msg.Data, &req); err != nil {
			return err
		}
		return h.engine.ReportArmyOutcome(ctx, player, req.ArmyID, server.Outcome(req.Outcome), req.Score)

	case "enforceRating":
		return h.engine.EnforceRating(ctx, player)

	case "mutuallyAgreeDraw":
		return h.engine.MutuallyAgreeDraw(ctx, player)

	case "restoreGameSession":
		var req struct {
			GameID int32 `json:"gameId"`
		}
		if err := unmarshal(msg.Data, &req); err != nil {
			return err
		}
		_, err := h.engine.RestoreGameSession(ctx, player, req.GameID)
		return err

	case "disconnectPlayerFromGame":
		var req struct {
			TargetID int32 `json:"targetId"`
		}
		if err := unmarshal(msg.Data, &req); err != nil {
			return err
		}
		return h.engine.DisconnectPlayerFromGame(ctx, player, req.TargetID)

	case "leaveGame":
		return h.engine.RemovePlayer(ctx, player)

	case "reportArmyStatistics":
		var req struct {
			ID          int32      `json:"id"`
			Title       string     `json:"title"`
			FeaturedMod string     `json:"featuredMod"`
			MapFileName string     `json:"mapFileName"`
			HostID      int32      `json:"hostId"`
			State       string     `json:"state"`
			Validity    string     `json:"validity"`
			StartTime   *time.Time `json:"startTime"`
			EndTime     *time.Time `json:"endTime"`
		}
		if err := unmarshal(msg.Data, &req); err != nil {
			return err
		}
		return h.engine.ReportArmyStatistics(ctx, player, &server.GameRecord{
			ID:          req.ID,
			Title:       req.Title,
			FeaturedMod: req.FeaturedMod,
			MapFileName: req.MapFileName,
			HostID:      req.HostID,
			State:       server.GameState(req.State),
			Validity:    server.Validity(req.Validity),
			StartTime:   req.StartTime,
			EndTime:     req.EndTime,
		})

	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
}

func unmarshal(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("missing payload")
	}
	return json.Unmarshal(data, v)
}
