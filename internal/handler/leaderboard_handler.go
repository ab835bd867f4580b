package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/dha2608/MLN-AI/internal/handler/dto"
	"github.com/dha2608/MLN-AI/internal/pkg/clock"
	"github.com/dha2608/MLN-AI/internal/service"
)

// LeaderboardHandler обрабатывает запросы таблицы лидеров
type LeaderboardHandler struct {
	leaderboard *service.LeaderboardService
	clock       *clock.Clock
	logger      *zap.Logger
}

// NewLeaderboardHandler создает новый обработчик таблицы лидеров
func NewLeaderboardHandler(leaderboard *service.LeaderboardService, clk *clock.Clock, logger *zap.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{leaderboard: leaderboard, clock: clk, logger: logger}
}

// parseLimit читает ?limit=. Отсутствующее или нечисловое значение даёт 0 (размер по умолчанию).
func parseLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil {
		return 0
	}
	return limit
}

// GetLeaderboard возвращает первые n участников по накопительному счёту
func (h *LeaderboardHandler) GetLeaderboard(c *gin.Context) {
	limit := h.leaderboard.ClampLimit(parseLimit(c))

	entries, err := h.leaderboard.Collect(c.Request.Context(), limit)
	if err != nil {
		respondError(c, h.logger, "leaderboard.top", err)
		return
	}

	c.JSON(http.StatusOK, dto.LeaderboardResponse{Limit: limit, Entries: entries})
}

// ExportLeaderboard отдает таблицу лидеров в формате Excel (.xlsx)
func (h *LeaderboardHandler) ExportLeaderboard(c *gin.Context) {
	limit := h.leaderboard.ClampLimit(parseLimit(c))

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Leaderboard"
	f.SetSheetName("Sheet1", sheetName)

	// Используем StreamWriter: строки пишутся по мере чтения журнала
	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		respondError(c, h.logger, "leaderboard.export", err)
		return
	}

	headers := []interface{}{"Rank", "Participant", "Name", "Score"}
	if err := sw.SetRow("A1", headers); err != nil {
		respondError(c, h.logger, "leaderboard.export", err)
		return
	}

	rowNum := 2
	for entry, err := range h.leaderboard.Top(c.Request.Context(), limit) {
		if err != nil {
			respondError(c, h.logger, "leaderboard.export", err)
			return
		}
		cell, _ := excelize.CoordinatesToCellName(1, rowNum)
		row := []interface{}{entry.Rank, sanitizeForExcel(entry.ParticipantID), sanitizeForExcel(entry.DisplayName), entry.CumulativeScore}
		if err := sw.SetRow(cell, row); err != nil {
			respondError(c, h.logger, "leaderboard.export", err)
			return
		}
		rowNum++
	}

	if err := sw.Flush(); err != nil {
		respondError(c, h.logger, "leaderboard.export", err)
		return
	}

	filename := fmt.Sprintf("leaderboard_%s.xlsx", clock.FormatDate(h.clock.Today()))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	c.Status(http.StatusOK)

	if err := f.Write(c.Writer); err != nil {
		h.logger.Warn("Failed to write xlsx to response", zap.Error(err))
	}
}

// sanitizeForExcel экранирует строки, которые табличный редактор принял бы за формулу
func sanitizeForExcel(s string) string {
	if len(s) == 0 {
		return s
	}
	// Символы, начинающие формулу в Excel/LibreOffice: = + - @ \t \r
	if s[0] == '=' || s[0] == '+' || s[0] == '-' || s[0] == '@' || s[0] == '\t' || s[0] == '\r' {
		return "'" + s
	}
	return s
}
