package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/kardelitaitu/auto-ai-sub003/pkg/browser"
	"github.com/kardelitaitu/auto-ai-sub003/pkg/types"
)

const generatedTextMaxTokens = 120

// Reply writes an AI-generated reply under the primary post.
type Reply struct{}

func (a *Reply) Kind() types.EngagementCategory { return types.CategoryReply }

func (a *Reply) CanExecute(ctx context.Context, actx *Context) bool {
	if actx.Post == nil || actx.Generator == nil {
		return false
	}
	return selectorPresent(actx.Page, browser.SelectorReplyButton)
}

func (a *Reply) Execute(ctx context.Context, actx *Context) error {
	text, err := generateText(ctx, actx, types.ActionGenerateReply)
	if err != nil {
		return err
	}

	if err := actx.Page.Click(browser.SelectorReplyButton, browser.ClickOptions{}); err != nil {
		return err
	}
	return submitComposer(actx, text)
}

// Quote reposts the primary post with AI-generated commentary.
type Quote struct{}

func (a *Quote) Kind() types.EngagementCategory { return types.CategoryQuote }

func (a *Quote) CanExecute(ctx context.Context, actx *Context) bool {
	if actx.Post == nil || actx.Generator == nil {
		return false
	}
	return selectorPresent(actx.Page, browser.SelectorRepostButton)
}

func (a *Quote) Execute(ctx context.Context, actx *Context) error {
	text, err := generateText(ctx, actx, types.ActionGenerateQuote)
	if err != nil {
		return err
	}

	if err := actx.Page.Click(browser.SelectorRepostButton, browser.ClickOptions{}); err != nil {
		return err
	}
	if err := actx.Page.WaitFor(browser.SelectorQuoteMenu, browser.WaitOptions{State: "visible"}); err != nil {
		return fmt.Errorf("quote menu did not open: %w", err)
	}
	if err := actx.Page.Click(browser.SelectorQuoteMenu, browser.ClickOptions{}); err != nil {
		return err
	}
	return submitComposer(actx, text)
}

// generateText routes a generation request and sanity-checks the output.
func generateText(ctx context.Context, actx *Context, kind types.ActionKind) (string, error) {
	resp := actx.Generator.Route(ctx, types.InferenceRequest{
		Action:    kind,
		Prompt:    buildPrompt(kind, actx.Post),
		MaxTokens: generatedTextMaxTokens,
		SessionID: actx.SessionID,
	})
	if !resp.Success {
		return "", fmt.Errorf("text generation failed: %s", resp.Error)
	}

	text := strings.TrimSpace(strings.Trim(strings.TrimSpace(resp.Content), `"`))
	if text == "" {
		return "", fmt.Errorf("text generation produced empty output")
	}
	return text, nil
}

// submitComposer types the text into the composer and sends it.
func submitComposer(actx *Context, text string) error {
	if err := actx.Page.WaitFor(browser.SelectorComposer, browser.WaitOptions{State: "visible"}); err != nil {
		return fmt.Errorf("composer did not open: %w", err)
	}
	if err := actx.Page.Type(browser.SelectorComposer, text, browser.TypeOptions{
		DelayMillis: actx.TypeDelayMillis,
	}); err != nil {
		return err
	}
	return actx.Page.Click(browser.SelectorComposerSend, browser.ClickOptions{})
}

// buildPrompt renders the generation prompt from the post context.
func buildPrompt(kind types.ActionKind, post *browser.PostContent) string {
	var sb strings.Builder

	switch kind {
	case types.ActionGenerateQuote:
		sb.WriteString("Write a short quote-post comment on the post below. ")
	default:
		sb.WriteString("Write a short reply to the post below. ")
	}
	sb.WriteString("Sound like a regular person: casual, specific, no hashtags, ")
	sb.WriteString("no emoji spam, under 200 characters. Output only the text.\n\n")

	if post.Author != "" {
		sb.WriteString(fmt.Sprintf("Post by %s", post.Author))
		if post.Handle != "" {
			sb.WriteString(fmt.Sprintf(" (%s)", post.Handle))
		}
		sb.WriteString(":\n")
	} else {
		sb.WriteString("Post:\n")
	}
	sb.WriteString(post.Text)
	sb.WriteString("\n")

	if len(post.Replies) > 0 {
		sb.WriteString("\nExisting replies:\n")
		for _, reply := range post.Replies {
			sb.WriteString("- ")
			sb.WriteString(reply)
			sb.WriteString("\n")
		}
	}

	return sb.String()
}
