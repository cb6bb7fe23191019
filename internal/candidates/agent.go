package candidates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultBaseURL is the OpenAI-compatible NVIDIA endpoint.
	DefaultBaseURL = "https://integrate.api.nvidia.com/v1"
	// DefaultModel is the chat model used for the agent and its tools.
	DefaultModel            = "mistralai/mixtral-8x7b-instruct-v0.1"
	DefaultMaxIterations    = 5
	DefaultMaxExecutionTime = 15 * time.Second
)

// ErrBudgetExhausted reports that the agent ran out of iterations or time
// before producing a final answer.
var ErrBudgetExhausted = errors.New("candidates: agent budget exhausted")

// ChatClient is the part of the go-openai client the agent needs.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Tool is an action the agent may take.
type Tool struct {
	Name        string
	Description string
	Run         func(ctx context.Context, input string) (string, error)
}

// Config configures NewAgent.
type Config struct {
	APIKey           string
	BaseURL          string
	Model            string
	TavilyAPIKey     string
	MaxIterations    int
	MaxExecutionTime time.Duration
	HTTPClient       *http.Client
}

// Agent runs a reason/act/observe loop against a chat model until the model
// gives a final answer or the budget runs out.
type Agent struct {
	client ChatClient
	model  string
	tools  []Tool
	logger *slog.Logger

	mu               sync.Mutex
	maxIterations    int
	maxExecutionTime time.Duration
}

// NewAgent builds an agent on an OpenAI-compatible endpoint with the word
// prediction tools, plus web search when a Tavily key is configured.
func NewAgent(cfg Config, logger *slog.Logger) (*Agent, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("candidates: api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.MaxExecutionTime == 0 {
		cfg.MaxExecutionTime = DefaultMaxExecutionTime
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}
	client := openai.NewClientWithConfig(clientCfg)

	tools := []Tool{
		LLMTool(client, cfg.Model, "WordsPredictLLM",
			"Predicts 50 important words that are likely to be used in a conversation.", predictTemplate),
	}
	if cfg.TavilyAPIKey != "" {
		tavily := NewTavily(cfg.TavilyAPIKey, cfg.HTTPClient)
		tools = append(tools, tavily.Tool())
	}
	tools = append(tools, LLMTool(client, cfg.Model, "SearchResultsWordsLLM",
		"Finds important words related to results of search engine query.", searchResultsTemplate))

	return New(client, cfg.Model, tools, cfg.MaxIterations, cfg.MaxExecutionTime, logger), nil
}

// New builds an agent from its parts.
func New(client ChatClient, model string, tools []Tool, maxIterations int, maxExecutionTime time.Duration, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		client:           client,
		model:            model,
		tools:            tools,
		logger:           logger.With("component", "agent"),
		maxIterations:    maxIterations,
		maxExecutionTime: maxExecutionTime,
	}
}

// Generate predicts candidate words for a transcript.
func (a *Agent) Generate(ctx context.Context, transcript string) ([]string, error) {
	output, err := a.Run(ctx, transcript)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCandidateGeneration, err)
	}
	words, err := Parse(output)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCandidateGeneration, err)
	}
	a.logger.Debug("agent words", "count", len(words))
	return words, nil
}

// Close zeroes the iteration and time budget so running and future calls stop.
func (a *Agent) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.maxIterations = 0
	a.maxExecutionTime = 0
	return nil
}

func (a *Agent) budget() (int, time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.maxIterations, a.maxExecutionTime
}

// Run executes the loop and returns the raw final answer.
func (a *Agent) Run(ctx context.Context, input string) (string, error) {
	iterations, limit := a.budget()
	if iterations <= 0 || limit <= 0 {
		return "", ErrBudgetExhausted
	}
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	var scratchpad strings.Builder
	for i := 0; i < iterations; i++ {
		if n, _ := a.budget(); n <= 0 {
			return "", ErrBudgetExhausted
		}

		resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: a.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: a.prompt(input, scratchpad.String())},
			},
			// Zero is omitted on the wire; this is the closest sendable value.
			Temperature: math.SmallestNonzeroFloat32,
			Stop:        []string{"\nObservation:"},
		})
		if err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("%w: %v", ErrBudgetExhausted, ctx.Err())
			}
			return "", fmt.Errorf("chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", errors.New("chat completion: no choices")
		}
		text := resp.Choices[0].Message.Content

		st, err := parseStep(text)
		if err != nil {
			a.logger.Debug("unparseable agent step", "iteration", i, "error", err)
			fmt.Fprintf(&scratchpad, "%s\nObservation: Invalid Format: %v\nThought:", text, err)
			continue
		}
		if st.final {
			return st.answer, nil
		}

		obs := a.runTool(ctx, st.action, st.input)
		a.logger.Debug("agent action", "iteration", i, "tool", st.action)
		fmt.Fprintf(&scratchpad, "%s\nObservation: %s\nThought:", strings.TrimRight(text, " \n"), obs)
	}
	return "", fmt.Errorf("%w: stopped after %d iterations", ErrBudgetExhausted, iterations)
}

func (a *Agent) prompt(input, scratchpad string) string {
	var desc, names []string
	for _, t := range a.tools {
		desc = append(desc, t.Name+": "+t.Description)
		names = append(names, t.Name)
	}
	return strings.NewReplacer(
		"{tools}", strings.Join(desc, "\n"),
		"{tool_names}", strings.Join(names, ", "),
		"{input}", input,
		"{agent_scratchpad}", scratchpad,
	).Replace(reactTemplate)
}

func (a *Agent) runTool(ctx context.Context, name, input string) string {
	for _, t := range a.tools {
		if t.Name != name {
			continue
		}
		out, err := t.Run(ctx, input)
		if err != nil {
			a.logger.Warn("tool failed", "tool", name, "error", err)
			return "tool error: " + err.Error()
		}
		return out
	}
	names := make([]string, len(a.tools))
	for i, t := range a.tools {
		names[i] = t.Name
	}
	return fmt.Sprintf("%s is not a valid tool, try one of [%s].", name, strings.Join(names, ", "))
}

var (
	actionRe      = regexp.MustCompile(`(?s)Action\s*\d*\s*:[\s]*(.*?)[\s]*Action\s*\d*\s*Input\s*\d*\s*:[\s]*(.*)`)
	finalAnswerRe = regexp.MustCompile(`(?s)Final Answer:\s*(.*)`)
)

type step struct {
	final  bool
	answer string
	action string
	input  string
}

func parseStep(text string) (step, error) {
	action := actionRe.FindStringSubmatch(text)
	final := finalAnswerRe.FindStringSubmatch(text)
	switch {
	case action != nil && final != nil:
		return step{}, errors.New("both a final answer and a parse-able action")
	case final != nil:
		return step{final: true, answer: strings.TrimSpace(final[1])}, nil
	case action != nil:
		input := strings.Trim(strings.TrimSpace(action[2]), `"`)
		return step{action: strings.TrimSpace(action[1]), input: input}, nil
	}
	return step{}, errors.New("missing 'Action:' or 'Final Answer:'")
}

// LLMTool wraps a single-shot prompt as an agent tool.
func LLMTool(client ChatClient, model, name, description, template string) Tool {
	return Tool{
		Name:        name,
		Description: description,
		Run: func(ctx context.Context, query string) (string, error) {
			resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
				Model: model,
				Messages: []openai.ChatCompletionMessage{
					{Role: openai.ChatMessageRoleUser, Content: strings.ReplaceAll(template, "{query}", query)},
				},
				Temperature: math.SmallestNonzeroFloat32,
			})
			if err != nil {
				return "", fmt.Errorf("%s: %w", name, err)
			}
			if len(resp.Choices) == 0 {
				return "", fmt.Errorf("%s: no choices", name)
			}
			return resp.Choices[0].Message.Content, nil
		},
	}
}
