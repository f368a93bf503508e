package server

import (
	"strconv"
	"strings"
)

// Wire-visible option name constants (spec.md §6). Grounded on the
// OPTION_* String constants in GameService.java.
const (
	OptionFogOfWar             = "FogOfWar"
	OptionCheatsEnabled        = "CheatsEnabled"
	OptionPrebuiltUnits        = "PrebuiltUnits"
	OptionNoRush               = "NoRushOption"
	OptionRestrictedCategories = "RestrictedCategories"
	OptionSlots                = "Slots"
	OptionScenarioFile         = "ScenarioFile"
	OptionTitle                = "Title"
	OptionTeam                 = "Team"
	OptionTeamLock             = "TeamLock"
	OptionTeamSpawn            = "TeamSpawn"
	OptionRevealedCivilians    = "RevealedCivilians"
	OptionDifficulty           = "Difficulty"
	OptionExpansion            = "Expansion"
	OptionStartSpot            = "StartSpot"
	OptionFaction              = "Faction"
	OptionColor                = "Color"
	OptionArmy                 = "Army"
	OptionVictoryCondition     = "VictoryCondition"
)

// applyGlobalOption stores a global option and applies the recognized-key
// side effects listed in spec.md §4.5. Must be called while holding g.mu.
func (g *Game) applyGlobalOption(key, value string) {
	g.Options[key] = value
	switch key {
	case OptionVictoryCondition:
		g.VictoryCondition = value
	case OptionSlots:
		if n, ok := parseInt(value); ok {
			g.MaxPlayers = n
		}
	case OptionScenarioFile:
		if folder, ok := parseScenarioFolder(value); ok {
			g.MapFolder = folder
		}
		// Open question (b): a malformed ScenarioFile (fewer than three
		// path segments) is rejected explicitly rather than guessed at; the
		// raw option value is still stored above, only MapFolder is left
		// untouched. See DESIGN.md.
	case OptionTitle:
		g.Title = value
	}
}

// parseScenarioFolder derives the map folder name as the second `/`-delimited
// segment of a scenario path (the first segment after the leading slash is
// trimmed), after normalizing `\` and `//` to `/` (spec.md §4.5, S6). Returns
// ok=false if fewer than three segments result.
func parseScenarioFolder(raw string) (string, bool) {
	normalized := strings.ReplaceAll(raw, "\\", "/")
	for strings.Contains(normalized, "//") {
		normalized = strings.ReplaceAll(normalized, "//", "/")
	}
	normalized = strings.TrimPrefix(normalized, "/")
	parts := strings.Split(normalized, "/")
	if len(parts) < 3 {
		return "", false
	}
	return parts[1], true
}

func parseInt(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// applyPlayerOption stores a per-player option. Must be called while
// holding g.mu.
func (g *Game) applyPlayerOption(playerID int32, key, value string) {
	opts, ok := g.PlayerOptions[playerID]
	if !ok {
		opts = make(map[string]string)
		g.PlayerOptions[playerID] = opts
	}
	opts[key] = value
}

// applyAIOption records an AI option. Per spec.md §4.5 and Open Question
// (a), only the Army key is ever stored for an AI — other keys arrive
// before the AI's final name is known in the wire protocol this engine
// descends from, and are intentionally dropped.
func (g *Game) applyAIOption(aiName, key, value string) {
	if key != OptionArmy {
		return
	}
	opts, ok := g.AIOptions[aiName]
	if !ok {
		opts = make(map[string]string)
		g.AIOptions[aiName] = opts
	}
	opts[key] = value
}

// clearSlot removes every player-options entry whose StartSpot equals
// slotID. AI entries are untouched: AIs are keyed by name, not slot
// (spec.md §4.5). Must be called while holding g.mu. Idempotent.
func (g *Game) clearSlot(slotID string) {
	for playerID, opts := range g.PlayerOptions {
		if opts[OptionStartSpot] == slotID {
			delete(g.PlayerOptions, playerID)
		}
	}
}

// armyForPlayer returns the Army option bound to playerID, if any, parsed
// to its integer army id.
func (g *Game) armyForPlayer(playerID int32) (int32, bool) {
	opts, ok := g.PlayerOptions[playerID]
	if !ok {
		return 0, false
	}
	raw, ok := opts[OptionArmy]
	if !ok {
		return 0, false
	}
	n, ok := parseInt(raw)
	if !ok {
		return 0, false
	}
	return int32(n), true
}

// knownArmy reports whether armyID is bound by some player- or ai-option
// entry's Army value (spec.md §4.6).
func (g *Game) knownArmy(armyID int32) bool {
	for _, opts := range g.PlayerOptions {
		if n, ok := parseInt(opts[OptionArmy]); ok && int32(n) == armyID {
			return true
		}
	}
	for _, opts := range g.AIOptions {
		if n, ok := parseInt(opts[OptionArmy]); ok && int32(n) == armyID {
			return true
		}
	}
	return false
}
