package dice

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var exprPattern = regexp.MustCompile(`^(\d*)d(\d+)([+-]\d+)?$`)

// Expression is a parsed "NdS+M" dice expression.
type Expression struct {
	Raw      string
	Count    int
	Sides    int
	Modifier int
}

// Parse parses forms like "d4", "2d6", "1d8+2" and "3d4-1".
//
// Postcondition: on success Count >= 1 and Sides >= 2.
func Parse(expr string) (Expression, error) {
	s := strings.ToLower(strings.TrimSpace(expr))
	m := exprPattern.FindStringSubmatch(s)
	if m == nil {
		return Expression{}, fmt.Errorf("dice: invalid expression %q", expr)
	}
	e := Expression{Raw: expr, Count: 1}
	if m[1] != "" {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 {
			return Expression{}, fmt.Errorf("dice: invalid die count in %q", expr)
		}
		e.Count = n
	}
	sides, err := strconv.Atoi(m[2])
	if err != nil || sides < 2 {
		return Expression{}, fmt.Errorf("dice: invalid die sides in %q", expr)
	}
	e.Sides = sides
	if m[3] != "" {
		if e.Modifier, err = strconv.Atoi(m[3]); err != nil {
			return Expression{}, fmt.Errorf("dice: invalid modifier in %q: %w", expr, err)
		}
	}
	return e, nil
}

// Min returns the smallest possible total.
func (e Expression) Min() int { return e.Count + e.Modifier }

// Max returns the largest possible total.
func (e Expression) Max() int { return e.Count*e.Sides + e.Modifier }

// Roll rolls e with src and returns the individual dice and the total.
//
// Postcondition: Min() <= total <= Max().
func (e Expression) Roll(src Source) (rolled []int, total int) {
	rolled = make([]int, e.Count)
	total = e.Modifier
	for i := range rolled {
		rolled[i] = src.Intn(e.Sides) + 1
		total += rolled[i]
	}
	return rolled, total
}

// String returns the expression as written.
func (e Expression) String() string { return e.Raw }
