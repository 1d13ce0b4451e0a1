package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/betbot/crasher/internal/events"
	"github.com/gin-gonic/gin"
)

func (s *Server) handleStatus(c *gin.Context) {
	snap, ok := s.bus.Latest()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "engine not started"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sessionId":  snap.SessionID,
		"phase":      snap.Phase,
		"roundId":    snap.RoundID,
		"roundIndex": snap.RoundIndex,
		"balance":    snap.Balance.String(),
		"autopilot":  snap.Autopilot,
		"paused":     snap.Paused,
		"halted":     snap.Halted,
		"haltReason": snap.HaltReason,
		"strategies": snap.Strategies,
		"updatedAt":  snap.UpdatedAt,
	})
}

func (s *Server) handleSignal(c *gin.Context) {
	snap, ok := s.bus.Latest()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "engine not started"})
		return
	}
	sig := snap.Signal
	c.JSON(http.StatusOK, gin.H{
		"classification": sig.Classification,
		"confidence":     sig.Confidence,
		"shortMean":      sig.ShortMean,
		"longMean":       sig.LongMean,
		"longStdDev":     sig.LongStdDev,
		"streak":         sig.Streak,
		"coldStreak":     sig.ColdStreak,
		"patterns":       sig.Patterns,
		"recent":         snap.Recent,
	})
}

func (s *Server) handleStrategies(c *gin.Context) {
	snap, ok := s.bus.Latest()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "engine not started"})
		return
	}
	c.JSON(http.StatusOK, snap.Strategies)
}

type controlRequest struct {
	Action   string `json:"action" binding:"required"`
	Strategy string `json:"strategy"`
	Enabled  bool   `json:"enabled"`
	Config   string `json:"config"` // update_config 的 YAML
}

func (s *Server) handleControl(c *gin.Context) {
	var req controlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cmd := events.ControlCommand{
		Action:   events.ControlAction(req.Action),
		Strategy: req.Strategy,
		Enabled:  req.Enabled,
		Raw:      []byte(req.Config),
		At:       time.Now().UTC(),
	}
	switch cmd.Action {
	case events.ControlPause, events.ControlResume, events.ControlStop,
		events.ControlSetAutopilot, events.ControlActivateStrategy,
		events.ControlCashOut, events.ControlResetStrategy, events.ControlUpdateConfig:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action: " + req.Action})
		return
	}
	if !s.engine.Submit(cmd) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "command queue full"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

func (s *Server) handleSessionsList(c *gin.Context) {
	sessions, err := s.store.ListSessions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]gin.H, 0, len(sessions))
	for _, sess := range sessions {
		row := gin.H{
			"id":           sess.ID,
			"startedAt":    sess.StartedAt,
			"startBalance": sess.StartBalance.String(),
			"totalRounds":  sess.TotalRounds,
			"active":       sess.Active(),
		}
		if sess.EndedAt != nil {
			row["endedAt"] = sess.EndedAt
		}
		if sess.EndBalance != nil {
			row["endBalance"] = sess.EndBalance.String()
		}
		out = append(out, row)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleSessionSummary(c *gin.Context) {
	sum, err := s.store.SessionSummary(c.Request.Context(), c.Param("sessionID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if sum == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sessionId":   sum.Session.ID,
		"totalRounds": sum.Session.TotalRounds,
		"totalBets":   sum.TotalBets,
		"wins":        sum.Wins,
		"losses":      sum.Losses,
		"totalProfit": sum.TotalProfit.String(),
	})
}

func (s *Server) handleSessionRounds(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	rounds, err := s.store.ListRounds(c.Request.Context(), c.Param("sessionID"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]gin.H, 0, len(rounds))
	for _, r := range rounds {
		out = append(out, gin.H{
			"id":              r.ID,
			"crashMultiplier": r.CrashMultiplier,
			"startedAt":       r.StartedAt,
			"flagged":         r.Flagged,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleSessionBets(c *gin.Context) {
	bets, err := s.store.BetsBySession(c.Request.Context(), c.Param("sessionID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]gin.H, 0, len(bets))
	for _, b := range bets {
		row := gin.H{
			"id":            b.ID,
			"roundId":       b.RoundID,
			"strategy":      b.Strategy,
			"stake":         b.Stake.String(),
			"targetCashout": b.TargetCashout,
			"outcome":       b.Outcome,
			"payout":        b.Payout.String(),
			"placedAt":      b.PlacedAt,
		}
		if b.ResolvedAt != nil {
			row["resolvedAt"] = b.ResolvedAt
		}
		out = append(out, row)
	}
	c.JSON(http.StatusOK, out)
}
