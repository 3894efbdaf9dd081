// services/extraction_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/unidecode"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/text/cases"
	"gorm.io/gorm"

	"community-notify-system/models"
	"community-notify-system/utils"
)

const extractionSystemPrompt = `You are a leaderboard transcription assistant. ` +
	`The user sends a screenshot of a game leaderboard. Extract every visible row and ` +
	`respond with JSON of exactly this shape and nothing else: ` +
	`{"leaderboard":[{"rank":1,"name":"player","points":100}]}. ` +
	`rank is the 1-based position as shown, name is the player name as written, ` +
	`points is the score as an integer. Do not invent rows that are not in the image.`

type ExtractionService struct {
	DB     *gorm.DB
	Client *openai.Client
	Model  string

	// ArchiveUploads stores each screenshot to R2 for audit before the model call.
	ArchiveUploads bool
}

func NewExtractionService(db *gorm.DB) (*ExtractionService, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		cfg.BaseURL = baseURL
	}

	model := os.Getenv("OPENAI_VISION_MODEL")
	if model == "" {
		model = openai.GPT4o
	}

	return &ExtractionService{
		DB:             db,
		Client:         openai.NewClientWithConfig(cfg),
		Model:          model,
		ArchiveUploads: true,
	}, nil
}

type extractRequest struct {
	Image string `json:"image"`
}

// ExtractLeaderboard turns an uploaded screenshot into structured, reviewable
// leaderboard rows. The output is a proposal — nothing is persisted here;
// applying confirmed entries is a downstream, human-reviewed step.
func (s *ExtractionService) ExtractLeaderboard(c *fiber.Ctx) error {
	var req extractRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body", "details": err.Error()})
	}
	if strings.TrimSpace(req.Image) == "" {
		return c.Status(400).JSON(fiber.Map{"error": "no image supplied"})
	}

	data, contentType, ext, err := utils.DecodeImageDataURI(req.Image)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid image data", "details": err.Error()})
	}

	// Archive the screenshot for audit. Best-effort — never fatal.
	if s.ArchiveUploads {
		key := "leaderboards/extractions/" + uuid.NewString() + ext
		if url, err := utils.UploadBytesToR2(c.Context(), data, key, contentType); err != nil {
			log.Printf("[EXTRACT] ⚠️ Failed to archive screenshot: %v", err)
		} else {
			log.Printf("[EXTRACT] 📦 Screenshot archived at %s", url)
		}
	}

	dataURI := req.Image
	if !strings.HasPrefix(dataURI, "data:") {
		dataURI = "data:" + contentType + ";base64," + req.Image
	}

	raw, err := s.completeVision(c.Context(), dataURI)
	if err != nil {
		log.Printf("[EXTRACT] ❌ Vision API call failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "vision API call failed", "details": err.Error()})
	}

	rows, err := ParseLeaderboardResponse(raw)
	if err != nil {
		log.Printf("[EXTRACT] ❌ %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to parse AI response", "details": err.Error()})
	}

	entries := NormalizeLeaderboard(rows)
	s.reconcileNames(entries)

	log.Printf("[EXTRACT] ✅ Extracted %d leaderboard entries", len(entries))
	return c.Status(200).JSON(fiber.Map{"leaderboard": entries, "total": len(entries)})
}

func (s *ExtractionService) completeVision(ctx context.Context, imageDataURI string) (string, error) {
	resp, err := s.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.Model,
		Temperature: 0.1,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: extractionSystemPrompt,
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: "Extract the leaderboard from this screenshot.",
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    imageDataURI,
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("vision API returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// RawLeaderboardRow is one row exactly as the model emitted it. Rank and
// points stay raw because the model does not reliably type them.
type RawLeaderboardRow struct {
	Rank   json.RawMessage `json:"rank"`
	Name   string          `json:"name"`
	Points json.RawMessage `json:"points"`
}

type rawLeaderboardResponse struct {
	Leaderboard []RawLeaderboardRow `json:"leaderboard"`
}

// ParseLeaderboardResponse parses the model's reply. JSON mode makes the body
// clean JSON most of the time; when prose sneaks in, the first balanced {...}
// span is parsed and the rest treated as noise. No span, or a span that does
// not parse, is a hard error — there is no row-level recovery in a single blob.
func ParseLeaderboardResponse(raw string) ([]RawLeaderboardRow, error) {
	var resp rawLeaderboardResponse
	if err := json.Unmarshal([]byte(raw), &resp); err == nil {
		return resp.Leaderboard, nil
	}

	span, err := utils.ExtractJSONObject(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse AI response: %w", err)
	}
	if err := json.Unmarshal([]byte(span), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse AI response: %w", err)
	}
	return resp.Leaderboard, nil
}

// NormalizeLeaderboard drops rows missing a name or points, coerces points to
// a non-negative integer, defaults an absent rank to the row's 1-based
// position, and sorts by rank ascending.
func NormalizeLeaderboard(rows []RawLeaderboardRow) []models.LeaderboardExtractionEntry {
	entries := make([]models.LeaderboardExtractionEntry, 0, len(rows))

	for i, row := range rows {
		name := strings.TrimSpace(row.Name)
		if name == "" || len(row.Points) == 0 || string(row.Points) == "null" {
			continue
		}

		entry := models.LeaderboardExtractionEntry{
			Name:   name,
			Points: coerceNonNegativeInt(row.Points),
			Rank:   i + 1,
		}
		if rank, ok := coerceInt(row.Rank); ok {
			entry.Rank = rank
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(a, b int) bool {
		return entries[a].Rank < entries[b].Rank
	})
	return entries
}

// coerceInt reads a raw JSON value as an integer, accepting numbers and
// numeric strings.
func coerceInt(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return int(f), true
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		str = strings.TrimSpace(strings.ReplaceAll(str, ",", ""))
		if f, err := strconv.ParseFloat(str, 64); err == nil {
			return int(f), true
		}
	}
	return 0, false
}

// coerceNonNegativeInt is coerceInt with the extractor's points contract:
// parse failure yields 0, never a string; negatives clamp to 0.
func coerceNonNegativeInt(raw json.RawMessage) int {
	n, ok := coerceInt(raw)
	if !ok || n < 0 {
		return 0
	}
	return n
}

// reconcileNames attaches best-effort user matches by folded, accent-stripped
// name comparison against the mirrored user table. Suggestions only.
func (s *ExtractionService) reconcileNames(entries []models.LeaderboardExtractionEntry) {
	if s.DB == nil || len(entries) == 0 {
		return
	}

	var users []models.MirroredUser
	if err := s.DB.Find(&users).Error; err != nil {
		log.Printf("[EXTRACT] ⚠️ Failed to load mirrored users for reconciliation: %v", err)
		return
	}

	byName := make(map[string]models.MirroredUser, len(users))
	for _, u := range users {
		byName[foldName(u.Username)] = u
	}

	for i := range entries {
		if u, ok := byName[foldName(entries[i].Name)]; ok {
			entries[i].MatchedUserID = u.ExternalUserID
			entries[i].MatchedUsername = u.Username
		}
	}
}

var nameFolder = cases.Fold()

// foldName reduces a player name to a comparison key: ASCII-folded,
// case-folded, inner whitespace collapsed.
func foldName(name string) string {
	folded := nameFolder.String(unidecode.Unidecode(name))
	return strings.Join(strings.Fields(folded), " ")
}
