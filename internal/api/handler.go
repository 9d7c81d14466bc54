package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog/log"

	"github.com/SlpAus/chat-stats-bot/internal/platform/health"
	"github.com/SlpAus/chat-stats-bot/internal/stats"
)

const webhookSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// --- API响应模型 ---

type LeaderboardEntryResponse struct {
	SenderID int64   `json:"senderId"`
	Username string  `json:"username"`
	Count    int64   `json:"count"`
	Percent  float64 `json:"percent"`
}

type LeaderboardResponse struct {
	ChatID  int64                      `json:"chatId"`
	Total   int64                      `json:"total"`
	Entries []LeaderboardEntryResponse `json:"entries"`
}

type TypeShareResponse struct {
	Type    string  `json:"type"`
	Count   int64   `json:"count"`
	Percent float64 `json:"percent"`
}

type UserStatsResponse struct {
	ChatID    int64               `json:"chatId"`
	SenderID  int64               `json:"senderId"`
	Total     int64               `json:"total"`
	Breakdown []TypeShareResponse `json:"breakdown"`
	Day       int64               `json:"day"`
	Week      int64               `json:"week"`
	Trend     string              `json:"trend"`
}

type handler struct {
	deps Deps
}

func parseIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的参数 " + name})
		return 0, false
	}
	return id, true
}

// getLeaderboard 返回聊天排行榜
func (h *handler) getLeaderboard(c *gin.Context) {
	chatID, ok := parseIDParam(c, "chatID")
	if !ok {
		return
	}

	ranked, err := stats.GetRankedLeaderboard(c.Request.Context(), h.deps.Store, chatID)
	if err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("获取排行榜失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取排行榜数据失败"})
		return
	}

	resp := LeaderboardResponse{ChatID: chatID, Entries: make([]LeaderboardEntryResponse, 0, len(ranked))}
	for _, r := range ranked {
		resp.Total += r.Count
		resp.Entries = append(resp.Entries, LeaderboardEntryResponse{
			SenderID: r.SenderID,
			Username: r.Username,
			Count:    r.Count,
			Percent:  r.Percent,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// getUserStats 返回一个发送者的个人统计
func (h *handler) getUserStats(c *gin.Context) {
	chatID, ok := parseIDParam(c, "chatID")
	if !ok {
		return
	}
	userID, ok := parseIDParam(c, "userID")
	if !ok {
		return
	}

	personal, err := stats.GetPersonalStats(c.Request.Context(), h.deps.Store, chatID, userID, h.deps.Now())
	if err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Int64("sender_id", userID).Msg("获取个人统计失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取个人统计失败"})
		return
	}

	resp := UserStatsResponse{
		ChatID:    chatID,
		SenderID:  userID,
		Total:     personal.Total,
		Breakdown: make([]TypeShareResponse, 0, len(personal.Breakdown)),
		Day:       personal.Day,
		Week:      personal.Week,
		Trend:     personal.Trend.String(),
	}
	for _, share := range personal.Breakdown {
		resp.Breakdown = append(resp.Breakdown, TypeShareResponse{
			Type:    string(share.Type),
			Count:   share.Count,
			Percent: share.Percent,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// getHealth 在存储降级时返回503
func (h *handler) getHealth(c *gin.Context) {
	if h.deps.Health == nil {
		c.JSON(http.StatusOK, gin.H{"state": "unknown"})
		return
	}
	status := h.deps.Health.Status()
	code := http.StatusOK
	if status.State != health.StateHealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

// verifyWebhookSecret 校验Telegram在请求头中带回的密钥
func (h *handler) verifyWebhookSecret(c *gin.Context) {
	if !h.deps.Verifier.Validate(c.GetHeader(webhookSecretHeader)) {
		log.Warn().Str("remote", c.ClientIP()).Msg("Webhook密钥校验失败")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "密钥无效"})
		return
	}
	c.Next()
}

// receiveUpdate 解析更新并提交给分发器。处理是异步的，Telegram只需要尽快得到200。
func (h *handler) receiveUpdate(c *gin.Context) {
	var update models.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无法解析更新"})
		return
	}
	h.deps.Updates.HandleUpdate(c.Request.Context(), &update)
	c.Status(http.StatusOK)
}
