package condition

import (
	"fmt"
	e "github.com/fansqz/remote-debugger/error"
	"go.starlark.net/syntax"
	"sort"
	"strings"
)

// MemoryIdentifier 条件中读取内存使用的名称，例如 mem[rsp+8] == 0
const MemoryIdentifier = "mem"

// Condition 断点条件
// 条件只做语法检查，真正的求值由agent完成
type Condition struct {
	text      string
	registers []string
}

// Parse 解析断点条件
// 只支持整数、寄存器、内存读取以及算术、比较、逻辑运算
func Parse(text string) (*Condition, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty condition", e.ErrInvalidCondition)
	}
	expr, err := syntax.ParseExpr("condition", text, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", e.ErrInvalidCondition, err)
	}
	registers := map[string]struct{}{}
	var walkErr error
	syntax.Walk(expr, func(node syntax.Node) bool {
		if walkErr != nil {
			return false
		}
		switch n := node.(type) {
		case *syntax.Ident:
			if n.Name != MemoryIdentifier {
				registers[strings.ToLower(n.Name)] = struct{}{}
			}
		case *syntax.Literal:
			if n.Token != syntax.INT {
				walkErr = fmt.Errorf("%w: unsupported literal %s", e.ErrInvalidCondition, n.Raw)
			}
		case *syntax.IndexExpr:
			if ident, ok := n.X.(*syntax.Ident); !ok || ident.Name != MemoryIdentifier {
				walkErr = fmt.Errorf("%w: only %s[...] can be indexed", e.ErrInvalidCondition, MemoryIdentifier)
			}
		case *syntax.BinaryExpr, *syntax.UnaryExpr, *syntax.ParenExpr:
		default:
			walkErr = fmt.Errorf("%w: unsupported expression %T", e.ErrInvalidCondition, node)
		}
		return walkErr == nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	c := &Condition{text: text}
	for name := range registers {
		c.registers = append(c.registers, name)
	}
	sort.Strings(c.registers)
	return c, nil
}

func (c *Condition) String() string {
	return c.text
}

// Registers 条件中引用的寄存器，已排序
func (c *Condition) Registers() []string {
	return c.registers
}

// CheckRegisters 检查条件中引用的寄存器是否都存在
func (c *Condition) CheckRegisters(known []string) error {
	set := make(map[string]struct{}, len(known))
	for _, name := range known {
		set[strings.ToLower(name)] = struct{}{}
	}
	for _, name := range c.Registers() {
		if _, ok := set[name]; !ok {
			return fmt.Errorf("%w: unknown register %s", e.ErrInvalidCondition, name)
		}
	}
	return nil
}
