package classifier

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ledgersieve/ledgersieve/internal/common"
	"github.com/ledgersieve/ledgersieve/internal/model"
)

// MalformedResponseError marks classifier output that could not be
// interpreted. It is permanent: retrying an unparseable response rarely
// helps, so callers convert it into a review case instead of retrying.
type MalformedResponseError struct {
	Detail string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed classifier response: %s", e.Detail)
}

func (e *MalformedResponseError) Unwrap() error {
	return common.ErrMalformedResponse
}

// ParseOutcome parses the line-oriented classifier response format:
//
//	ACTION: categorize
//	NODE: <node id>
//	CONFIDENCE: 0.85
//	REASONING: free text
//
// proposeNode responses carry a NEW_NODE block (name/parent/description
// lines) instead of NODE; needsReview responses carry only REASONING.
func ParseOutcome(content string) (*Outcome, error) {
	lines := strings.Split(strings.TrimSpace(content), "\n")

	var outcome Outcome
	var inNewNode bool
	var nodeName, nodeParent, nodeDescription string

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if line == "NEW_NODE:" {
			inNewNode = true
			continue
		}

		if inNewNode {
			switch {
			case strings.HasPrefix(line, "name:"):
				nodeName = strings.TrimSpace(strings.TrimPrefix(line, "name:"))
				continue
			case strings.HasPrefix(line, "parent:"):
				nodeParent = strings.TrimSpace(strings.TrimPrefix(line, "parent:"))
				continue
			case strings.HasPrefix(line, "description:"):
				nodeDescription = strings.TrimSpace(strings.TrimPrefix(line, "description:"))
				continue
			}
			inNewNode = false
		}

		switch {
		case strings.HasPrefix(line, "ACTION:"):
			action := strings.TrimSpace(strings.TrimPrefix(line, "ACTION:"))
			switch Action(action) {
			case ActionCategorize, ActionProposeNode, ActionNeedsReview:
				outcome.Action = Action(action)
			default:
				return nil, &MalformedResponseError{Detail: fmt.Sprintf("unknown action %q", action)}
			}
		case strings.HasPrefix(line, "NODE:"):
			outcome.NodeID = strings.TrimSpace(strings.TrimPrefix(line, "NODE:"))
		case strings.HasPrefix(line, "CONFIDENCE:"):
			confStr := strings.TrimSpace(strings.TrimPrefix(line, "CONFIDENCE:"))
			conf, err := parseConfidence(confStr)
			if err != nil {
				return nil, &MalformedResponseError{Detail: fmt.Sprintf("bad confidence %q", confStr)}
			}
			outcome.Confidence = conf
		case strings.HasPrefix(line, "REASONING:"):
			outcome.Reasoning = strings.TrimSpace(strings.TrimPrefix(line, "REASONING:"))
		}
	}

	switch outcome.Action {
	case ActionCategorize:
		if outcome.NodeID == "" {
			return nil, &MalformedResponseError{Detail: "categorize without a node id"}
		}
	case ActionProposeNode:
		if nodeName == "" {
			return nil, &MalformedResponseError{Detail: "proposeNode without a node name"}
		}
		outcome.ProposedNode = &model.NodePlan{
			Name:        nodeName,
			ParentID:    nodeParent,
			Description: nodeDescription,
		}
	case ActionNeedsReview:
		// Reasoning only; nothing further required.
	default:
		return nil, &MalformedResponseError{Detail: "response has no ACTION line"}
	}

	return &outcome, nil
}

// parseConfidence accepts plain floats and percentage strings, clamping
// the result to [0, 1].
func parseConfidence(s string) (float64, error) {
	if strings.HasSuffix(s, "%") {
		pct, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "%")), 64)
		if err != nil {
			return 0, err
		}
		s = strconv.FormatFloat(pct/100.0, 'f', -1, 64)
	}

	conf, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if conf < 0 {
		conf = 0
	} else if conf > 1 {
		conf = 1
	}
	return conf, nil
}
