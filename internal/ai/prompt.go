package ai

import (
	"fmt"
	"strings"
	"time"
)

// PromptVersion tags persisted results with the template revision.
const PromptVersion = "v1"

const systemPrompt = "你是一名资深 A 股投资分析师。"

const outputSchema = `{
  "analysis": [
    {
      "ts_code": "股票代码",
      "score": 0到100的整数评分,
      "signal": "STRONG_BUY 或 BUY 或 HOLD 或 SELL 或 STRONG_SELL",
      "reasoning": "简要分析理由（中文，50字以内）"
    }
  ]
}`

// buildPrompt renders the batch analysis prompt for one target date.
func buildPrompt(candidates []Candidate, target time.Time) string {
	var sections []string
	for i := range candidates {
		sections = append(sections, formatCandidate(&candidates[i]))
	}

	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "请对以下 %d 只候选股票进行综合分析。\n\n", len(candidates))
	fmt.Fprintf(&b, "分析日期：%s\n\n", target.Format("2006-01-02"))
	b.WriteString("候选股票数据：\n")
	b.WriteString(strings.Join(sections, "\n"))
	b.WriteString("\n\n请严格按以下 JSON 格式返回：\n")
	b.WriteString(outputSchema)
	fmt.Fprintf(&b, "\n\n注意：必须对每只股票都给出分析，analysis 数组长度必须等于 %d。", len(candidates))
	return b.String()
}

func formatCandidate(c *Candidate) string {
	parts := []string{fmt.Sprintf("- %s %s", c.TsCode, c.Name)}
	parts = append(parts, fmt.Sprintf("  收盘 %.2f，涨跌幅 %.2f%%", c.Close, c.PctChg))

	var mas []string
	for _, n := range []string{"ma5", "ma10", "ma20", "ma60"} {
		if v, ok := c.Values[n]; ok {
			mas = append(mas, fmt.Sprintf("MA%s=%.2f", n[2:], v))
		}
	}
	if len(mas) > 0 {
		parts = append(parts, "  均线："+strings.Join(mas, ", "))
	}

	if dif, ok := c.Values["macd_dif"]; ok {
		parts = append(parts, fmt.Sprintf("  MACD：DIF=%.4f, DEA=%.4f, HIST=%.4f",
			dif, c.Values["macd_dea"], c.Values["macd_hist"]))
	}
	if rsi, ok := c.Values["rsi6"]; ok {
		parts = append(parts, fmt.Sprintf("  RSI6=%.2f", rsi))
	}
	if vr, ok := c.Values["vol_ratio"]; ok {
		parts = append(parts, fmt.Sprintf("  量比=%.2f", vr))
	}

	var fundamentals []string
	if v, ok := c.Values["pe_ttm"]; ok {
		fundamentals = append(fundamentals, fmt.Sprintf("PE(TTM)=%.2f", v))
	}
	if v, ok := c.Values["pb"]; ok {
		fundamentals = append(fundamentals, fmt.Sprintf("PB=%.2f", v))
	}
	if v, ok := c.Values["roe"]; ok {
		fundamentals = append(fundamentals, fmt.Sprintf("ROE=%.2f%%", v))
	}
	if v, ok := c.Values["profit_yoy"]; ok {
		fundamentals = append(fundamentals, fmt.Sprintf("利润增速=%.2f%%", v))
	}
	if len(fundamentals) > 0 {
		parts = append(parts, "  基本面："+strings.Join(fundamentals, ", "))
	}

	parts = append(parts, fmt.Sprintf("  命中策略：%s（%d个）",
		strings.Join(c.MatchedStrategies, ", "), len(c.MatchedStrategies)))
	return strings.Join(parts, "\n")
}
