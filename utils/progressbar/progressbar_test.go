package progressbar

import (
	"bytes"
	"strings"
	"testing"
)

func TestManualProgressBar(t *testing.T) {
	var out bytes.Buffer
	p := NewManualProgressBarTo(&out, 10, 4)

	p.Increment()
	if p.Progress() != 0.25 {
		t.Errorf("progress: want(0.25) have(%v)", p.Progress())
	}
	p.Display()
	if !strings.Contains(out.String(), "25.00%") {
		t.Errorf("display should show 25%%, have %q", out.String())
	}

	for i := 0; i < 10; i++ {
		p.Increment()
	}
	if p.Progress() != 1 {
		t.Errorf("progress should saturate at 1, have %v", p.Progress())
	}
	bar := p.String()
	if n := strings.Count(bar, "█"); n != 10 {
		t.Errorf("full bar: want 10 blocks, have %v in %q", n, bar)
	}
}
