package tools

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"
)

// GasDelta 是单个测试相对基线的 gas 变化的类型化表示。
// 解析只在命令输出进入系统的边界上发生一次，下游一律使用该结构，
// 不再从格式化文本反推数值。
type GasDelta struct {
	Test    string  `json:"test"`
	Delta   int64   `json:"delta"`
	Percent float64 `json:"percent"`
}

// Regression 判断该变化是否为回归（gas 用量上升）。
func (d GasDelta) Regression() bool {
	return d.Delta > 0
}

// 形如：testTransfer() (gas: -1204 (-0.440%))
var gasDeltaPattern = regexp.MustCompile(`^(\S+)\s+\(gas:\s*(-?\d+)\s*\((-?[0-9.]+)%\)\)\s*$`)

// ParseGasDeltas 从 snapshot diff 的人类可读输出中提取逐测试的 gas 变化。
// 外部工具的输出格式不受本系统控制，无法匹配的行一律跳过而不是报错。
func ParseGasDeltas(output string) []GasDelta {
	var deltas []GasDelta
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		match := gasDeltaPattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		delta, err := strconv.ParseInt(match[2], 10, 64)
		if err != nil {
			continue
		}
		percent, err := strconv.ParseFloat(match[3], 64)
		if err != nil {
			continue
		}
		deltas = append(deltas, GasDelta{Test: match[1], Delta: delta, Percent: percent})
	}
	return deltas
}
