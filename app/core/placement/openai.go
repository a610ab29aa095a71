package placement

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"timecoach/app/pkg/apperr"
)

const systemPrompt = "You are a study-scheduling assistant. You only ever output the JSON object the task asks for, with no markdown and no commentary."

// OpenAIOracle implements Oracle on the OpenAI chat-completions API.
type OpenAIOracle struct {
	client      openai.Client
	model       string
	temperature float64
}

// NewOpenAIOracle builds an oracle client. The API key comes from the
// environment (OPENAI_API_KEY); baseURL may be empty for the default endpoint.
func NewOpenAIOracle(model string, temperature float64, baseURL string) *OpenAIOracle {
	var opts []option.RequestOption
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIOracle{
		client:      openai.NewClient(opts...),
		model:       model,
		temperature: temperature,
	}
}

func (o *OpenAIOracle) ProposePlacement(ctx context.Context, req Request) (Proposal, error) {
	prompt, err := buildPrompt(req)
	if err != nil {
		return Proposal{}, apperr.Wrap(apperr.KindUpstreamFormat, err, "build placement prompt")
	}

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(o.temperature),
	})
	if err != nil {
		return Proposal{}, apperr.Wrap(apperr.KindUpstreamFormat, err, "placement oracle call failed")
	}
	if len(resp.Choices) == 0 {
		return Proposal{}, apperr.E(apperr.KindUpstreamFormat, "placement oracle returned no choices")
	}

	return ParseProposal(resp.Choices[0].Message.Content)
}

// buildPrompt renders the placement request into the instruction the model
// receives. The occupied blocks, flexible tasks, and history go in as JSON so
// ids survive round-tripping verbatim.
func buildPrompt(req Request) (string, error) {
	occupied, err := json.Marshal(req.Occupied)
	if err != nil {
		return "", err
	}
	tasks, err := json.Marshal(req.Tasks)
	if err != nil {
		return "", err
	}
	history, err := json.Marshal(req.History)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Plan study blocks for the day %s.\n\n", req.Day)
	fmt.Fprintf(&b, "Occupied slots the user already committed to (never overlap these):\n%s\n\n", occupied)
	fmt.Fprintf(&b, "Tasks that need a time slot, already ordered by priority (place earlier entries first):\n%s\n\n", tasks)
	fmt.Fprintf(&b, "Focus sessions from the recent days (prefer slots where the user historically focused well):\n%s\n\n", history)
	b.WriteString(`Reply with exactly this JSON shape:
{
  "schedule": [
    {"task_id": "id of a task from the list above", "title": "task title", "start": "HH:mm", "end": "HH:mm", "note": "one short sentence on why this slot"}
  ],
  "summary": "two to four sentences for the user about the day"
}

Rules:
1. Never overlap an occupied slot, and never let two proposed blocks overlap.
2. A task may be split into several blocks (120 minutes can become two 60-minute blocks).
3. Avoid single blocks longer than 90 minutes without a break.
4. Use 24-hour HH:mm times; every block must start and end within the day.
5. Output the JSON object only. No markdown, no extra text.`)
	return b.String(), nil
}

// ParseProposal validates and decodes a raw oracle reply. Markdown code
// fences are tolerated; anything else that deviates from the contract is an
// upstream_format error.
func ParseProposal(raw string) (Proposal, error) {
	content := stripCodeFence(raw)
	if strings.TrimSpace(content) == "" {
		return Proposal{}, apperr.E(apperr.KindUpstreamFormat, "placement oracle returned empty content")
	}
	if !gjson.Valid(content) {
		return Proposal{}, apperr.E(apperr.KindUpstreamFormat, "placement oracle returned invalid JSON")
	}

	root := gjson.Parse(content)
	scheduleField := root.Get("schedule")
	if !scheduleField.Exists() || !scheduleField.IsArray() {
		return Proposal{}, apperr.E(apperr.KindUpstreamFormat, "placement response missing schedule array")
	}

	for i, block := range scheduleField.Array() {
		for _, field := range []string{"task_id", "start", "end"} {
			v := block.Get(field)
			if v.Type != gjson.String || strings.TrimSpace(v.String()) == "" {
				return Proposal{}, apperr.E(apperr.KindUpstreamFormat, "placement block %d missing %s", i, field)
			}
		}
		// Optional fields are backfilled so decoding stays strict about shape
		// without punishing the oracle for omitting cosmetic text.
		var err error
		if !block.Get("title").Exists() {
			if content, err = sjson.Set(content, fmt.Sprintf("schedule.%d.title", i), ""); err != nil {
				return Proposal{}, apperr.Wrap(apperr.KindUpstreamFormat, err, "normalize placement block %d", i)
			}
		}
		if !block.Get("note").Exists() {
			if content, err = sjson.Set(content, fmt.Sprintf("schedule.%d.note", i), ""); err != nil {
				return Proposal{}, apperr.Wrap(apperr.KindUpstreamFormat, err, "normalize placement block %d", i)
			}
		}
	}
	if !root.Get("summary").Exists() {
		var err error
		if content, err = sjson.Set(content, "summary", ""); err != nil {
			return Proposal{}, apperr.Wrap(apperr.KindUpstreamFormat, err, "normalize placement summary")
		}
	}

	var proposal Proposal
	if err := json.Unmarshal([]byte(content), &proposal); err != nil {
		return Proposal{}, apperr.Wrap(apperr.KindUpstreamFormat, err, "decode placement response")
	}
	return proposal, nil
}

func stripCodeFence(raw string) string {
	content := strings.TrimSpace(raw)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}
