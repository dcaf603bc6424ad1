package tensorflow

import (
	"context"
	"fmt"
	"os"

	tf "github.com/tensorflow/tensorflow/tensorflow/go"

	"github.com/dchistyakov/image-insight/internal/core/domain"
)

// Graph node names declared by the classifier's frozen graph. The model
// decodes and resizes the image itself, so it consumes the raw encoded
// bytes rather than a preprocessed tensor.
const (
	inputOp  = "DecodeJpeg/contents"
	outputOp = "softmax"
)

// Classifier runs the multi-class backend over a frozen computation graph
// loaded once at startup. tf.Session is safe for concurrent Run calls.
type Classifier struct {
	graph   *tf.Graph
	session *tf.Session
	labels  *LabelMap
}

func NewClassifier(graphPath string, labels *LabelMap) (*Classifier, error) {
	graphData, err := os.ReadFile(graphPath)
	if err != nil {
		return nil, fmt.Errorf("read graph def: %w", err)
	}

	graph := tf.NewGraph()
	if err := graph.Import(graphData, ""); err != nil {
		return nil, fmt.Errorf("import graph def: %w", err)
	}
	if graph.Operation(inputOp) == nil || graph.Operation(outputOp) == nil {
		return nil, fmt.Errorf("graph is missing %s or %s", inputOp, outputOp)
	}

	session, err := tf.NewSession(graph, nil)
	if err != nil {
		return nil, fmt.Errorf("create tensorflow session: %w", err)
	}

	return &Classifier{graph: graph, session: session, labels: labels}, nil
}

// Classify feeds the encoded bytes through the graph and maps each known
// class id to its human-readable label. Ids without a label are skipped.
func (c *Classifier) Classify(ctx context.Context, imageBytes []byte) (map[string]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tensor, err := tf.NewTensor(string(imageBytes))
	if err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "classify", err)
	}

	output, err := c.session.Run(
		map[tf.Output]*tf.Tensor{
			c.graph.Operation(inputOp).Output(0): tensor,
		},
		[]tf.Output{
			c.graph.Operation(outputOp).Output(0),
		},
		nil,
	)
	if err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "classify", err)
	}

	predictions, err := squeeze(output[0].Value())
	if err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "classify", err)
	}

	scores := make(map[string]float64, c.labels.Len())
	for id, score := range predictions {
		name := c.labels.Name(id)
		if name == "" {
			continue
		}
		scores[name] = float64(score)
	}
	return scores, nil
}

func (c *Classifier) Close() error {
	return c.session.Close()
}

func squeeze(v any) ([]float32, error) {
	switch value := v.(type) {
	case []float32:
		return value, nil
	case [][]float32:
		if len(value) == 0 {
			return nil, fmt.Errorf("empty prediction batch")
		}
		return value[0], nil
	default:
		return nil, fmt.Errorf("unexpected prediction type %T", v)
	}
}
