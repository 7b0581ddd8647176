package mapview

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/adampresley/adamgokit/httphelpers"
)

/*
params reads required numeric request parameters. The first failure
is kept in err and later reads return zero.
*/
type params struct {
	r   *http.Request
	err error
}

func newParams(r *http.Request) *params {
	return &params{r: r}
}

func (p *params) raw(name string) string {
	if p.err != nil {
		return ""
	}

	s := httphelpers.GetFromRequest[string](p.r, name)
	if s == "" {
		p.err = fmt.Errorf("missing parameter %s", name)
	}

	return s
}

func (p *params) float(name string) float64 {
	s := p.raw(name)
	if p.err != nil {
		return 0
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.err = fmt.Errorf("%s invalid: %w", name, err)
	}

	return v
}

func (p *params) int(name string) int {
	s := p.raw(name)
	if p.err != nil {
		return 0
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		p.err = fmt.Errorf("%s invalid: %w", name, err)
	}

	return v
}

func (p *params) zoom(name string) int {
	zoom := p.int(name)
	if p.err == nil {
		p.err = checkZoom(zoom)
	}

	return zoom
}
