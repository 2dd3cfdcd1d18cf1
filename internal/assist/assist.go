// Package assist asks an LLM agent for a repaired version of a LaTeX
// expression. The agent works through tools backed by the local normalizer,
// validator and renderer; its answer is a suggestion that is normalized and
// validated again before it is returned.
package assist

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"

	"latex-mathedit/internal/config"
	"latex-mathedit/internal/latex"
	"latex-mathedit/internal/logger"
	"latex-mathedit/internal/render"
	"latex-mathedit/internal/types"
)

// Expressions longer than this are rejected before reaching the model.
const maxExpressionLen = 8000

var fencedRe = regexp.MustCompile("(?s)```(?:latex|tex)?\\s*\\n?(.*?)```")

// generateFunc runs the agent on the given messages.
type generateFunc func(ctx context.Context, input []*schema.Message) (*schema.Message, error)

// Assistant 基于 eino ReAct Agent 的 LaTeX 修复建议
type Assistant struct {
	apiKey   string
	baseURL  string
	model    string
	maxSteps int
	renderer *render.Renderer

	// newAgent builds the agent for one request; replaced in tests.
	newAgent func(ctx context.Context, tools []tool.BaseTool) (generateFunc, error)
}

// New creates an Assistant. The API key is required.
func New(apiKey, baseURL, model string) (*Assistant, error) {
	if apiKey == "" {
		return nil, types.NewAppError(types.ErrConfig, "OpenAI API key is not configured", nil)
	}
	if model == "" {
		model = config.DefaultModel
	}
	a := &Assistant{
		apiKey:   apiKey,
		baseURL:  baseURL,
		model:    model,
		maxSteps: 12, // each tool round trip takes two steps
		renderer: render.NewRenderer(),
	}
	a.newAgent = a.reactAgent
	return a, nil
}

// NewFromConfig creates an Assistant from the loaded configuration.
func NewFromConfig(cfg *config.ConfigManager) (*Assistant, error) {
	return New(cfg.GetAPIKey(), cfg.GetBaseURL(), cfg.GetModel())
}

// Suggestion 修复建议
type Suggestion struct {
	Original    string                 `json:"original"`
	Suggested   string                 `json:"suggested"`
	Explanation string                 `json:"explanation"`
	Validation  types.ValidationResult `json:"validation"`
	Changed     bool                   `json:"changed"`
}

// Tool parameter structs with jsonschema tags for eino's InferTool

// ExpressionParams parameters for the validate/normalize/render tools
type ExpressionParams struct {
	Expression string `json:"expression" jsonschema:"description=The LaTeX expression without surrounding $ delimiters"`
}

// ProposeFixParams parameters for propose_fix tool
type ProposeFixParams struct {
	Expression  string `json:"expression" jsonschema:"description=The corrected LaTeX expression"`
	Explanation string `json:"explanation" jsonschema:"description=One or two sentences on what was wrong"`
}

// session collects the proposal made during one Suggest call.
type session struct {
	mu          sync.Mutex
	proposed    string
	explanation string
}

func (a *Assistant) createTools(s *session) ([]tool.BaseTool, error) {
	validateTool, err := utils.InferTool(
		"validate_latex",
		"Check an expression for unbalanced braces and $ delimiters.",
		func(ctx context.Context, params *ExpressionParams) (string, error) {
			return toolValidate(params.Expression), nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create validate_latex tool: %w", err)
	}

	normalizeTool, err := utils.InferTool(
		"normalize_latex",
		"Rewrite an expression into the editor's canonical form.",
		func(ctx context.Context, params *ExpressionParams) (string, error) {
			return latex.Normalize(params.Expression), nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create normalize_latex tool: %w", err)
	}

	renderTool, err := utils.InferTool(
		"render_latex",
		"Render an expression to MathML to see whether the renderer accepts it.",
		func(ctx context.Context, params *ExpressionParams) (string, error) {
			return a.toolRender(params.Expression), nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create render_latex tool: %w", err)
	}

	proposeTool, err := utils.InferTool(
		"propose_fix",
		"Call this once with the final corrected expression.",
		func(ctx context.Context, params *ProposeFixParams) (string, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.proposed = params.Expression
			s.explanation = params.Explanation
			return "Proposal recorded: " + toolValidate(params.Expression), nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create propose_fix tool: %w", err)
	}

	return []tool.BaseTool{validateTool, normalizeTool, renderTool, proposeTool}, nil
}

func toolValidate(expr string) string {
	result := latex.Validate(expr)
	if result.Valid {
		return "valid"
	}
	return "invalid: " + result.Error
}

func (a *Assistant) toolRender(expr string) string {
	result := a.renderer.Render("$$" + expr + "$$")
	if result.Fallback {
		return "render failed; the renderer could not parse this expression"
	}
	return fmt.Sprintf("rendered (%d bytes of MathML)", len(result.HTML))
}

func (a *Assistant) reactAgent(ctx context.Context, tools []tool.BaseTool) (generateFunc, error) {
	chatModelConfig := &openai.ChatModelConfig{
		Model:  a.model,
		APIKey: a.apiKey,
	}
	if a.baseURL != "" {
		chatModelConfig.BaseURL = a.baseURL
	}

	chatModel, err := openai.NewChatModel(ctx, chatModelConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	agent, err := react.NewAgent(ctx, &react.AgentConfig{
		ToolCallingModel: chatModel,
		ToolsConfig: compose.ToolsNodeConfig{
			Tools: tools,
		},
		MaxStep: a.maxSteps,
		MessageModifier: func(ctx context.Context, input []*schema.Message) []*schema.Message {
			return append([]*schema.Message{schema.SystemMessage(systemPrompt)}, input...)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ReAct agent: %w", err)
	}

	return func(ctx context.Context, input []*schema.Message) (*schema.Message, error) {
		return agent.Generate(ctx, input)
	}, nil
}

// Suggest returns a repair suggestion for expr. The field value is never
// changed here; callers show the suggestion and let the user accept it.
func (a *Assistant) Suggest(ctx context.Context, expr string) (*Suggestion, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, types.NewAppError(types.ErrInvalidInput, "expression is empty", nil)
	}
	if len(expr) > maxExpressionLen {
		return nil, types.NewAppErrorWithDetails(types.ErrInvalidInput, "expression is too long",
			fmt.Sprintf("%d bytes, limit %d", len(expr), maxExpressionLen), nil)
	}

	current := latex.Validate(expr)
	logger.Info("requesting LaTeX repair suggestion",
		logger.String("model", a.model),
		logger.Int("length", len(expr)),
		logger.Bool("valid", current.Valid))

	s := &session{}
	tools, err := a.createTools(s)
	if err != nil {
		return nil, types.NewAppError(types.ErrInternal, "failed to create tools", err)
	}
	generate, err := a.newAgent(ctx, tools)
	if err != nil {
		return nil, types.NewAppError(types.ErrAssist, "failed to start assistant", err)
	}

	response, err := generate(ctx, []*schema.Message{
		schema.UserMessage(buildUserMessage(expr, current)),
	})
	if err != nil {
		logger.Error("assistant agent failed", err)
		return nil, types.NewAppError(types.ErrAssist, "assistant request failed", err)
	}

	content := ""
	if response != nil {
		content = response.Content
	}
	s.mu.Lock()
	proposed, explanation := s.proposed, s.explanation
	s.mu.Unlock()
	if proposed == "" {
		proposed, explanation = extractAnswer(content)
	}
	if explanation == "" {
		explanation = strings.TrimSpace(content)
	}
	if proposed == "" {
		return nil, types.NewAppError(types.ErrAssist, "assistant returned no expression", nil)
	}

	suggested := latex.Normalize(proposed)
	result := &Suggestion{
		Original:    expr,
		Suggested:   suggested,
		Explanation: explanation,
		Validation:  latex.Validate(suggested),
		Changed:     suggested != latex.Normalize(expr),
	}
	if !result.Validation.Valid {
		logger.Warn("assistant suggestion still fails validation",
			logger.String("error", result.Validation.Error))
	}
	return result, nil
}

// extractAnswer takes the first fenced block as the expression and the text
// around it as the explanation. Without a fence the whole reply is the
// expression.
func extractAnswer(content string) (expr, explanation string) {
	content = strings.TrimSpace(content)
	m := fencedRe.FindStringSubmatchIndex(content)
	if m == nil {
		return content, ""
	}
	expr = strings.TrimSpace(content[m[2]:m[3]])
	explanation = strings.TrimSpace(content[:m[0]] + " " + content[m[1]:])
	return expr, explanation
}

func buildUserMessage(expr string, current types.ValidationResult) string {
	var sb strings.Builder
	sb.WriteString("Fix this LaTeX math expression.\n\n")
	sb.WriteString("```latex\n")
	sb.WriteString(expr)
	sb.WriteString("\n```\n\n")
	if current.Valid {
		sb.WriteString("The validator accepts it, but it may still render incorrectly.\n")
	} else {
		sb.WriteString(fmt.Sprintf("The validator reports: %s.\n", current.Error))
	}
	return sb.String()
}

const systemPrompt = `You repair LaTeX math expressions typed into a math editor.

TOOLS:
- validate_latex(expression): brace and $ balance check
- normalize_latex(expression): canonical form used by the editor
- render_latex(expression): whether the renderer accepts it
- propose_fix(expression, explanation): submit the final answer

RULES:
1. Keep the author's meaning. Change as little as possible.
2. Do not add surrounding $ delimiters.
3. Check your candidate with validate_latex and render_latex before proposing it.
4. Call propose_fix exactly once, then reply with a one-sentence summary.`
