package extract

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/textract"

	"github.com/justapithecus/glean/log"
	"github.com/justapithecus/glean/types"
)

// Deps carries the collaborators a backend may need. Only the ones used by
// the selected backend must be set.
type Deps struct {
	Local       LocalOptions
	Textract    TextractAPI
	Rekognition RekognitionAPI
	Logger      *log.Logger
}

// AWSDeps builds Deps with service clients from a resolved aws.Config.
func AWSDeps(cfg aws.Config, local LocalOptions, logger *log.Logger) Deps {
	return Deps{
		Local:       local,
		Textract:    textract.NewFromConfig(cfg),
		Rekognition: rekognition.NewFromConfig(cfg),
		Logger:      logger,
	}
}

// New selects exactly one backend.
func New(backend types.Backend, deps Deps) (Extractor, error) {
	switch backend {
	case types.BackendLocal, "":
		return NewLocal(deps.Local, deps.Logger), nil
	case types.BackendDocument:
		if deps.Textract == nil {
			return nil, fmt.Errorf("document backend requires a textract client")
		}
		return NewDocument(deps.Textract, deps.Logger), nil
	case types.BackendVision:
		if deps.Rekognition == nil {
			return nil, fmt.Errorf("vision backend requires a rekognition client")
		}
		return NewVision(deps.Rekognition, deps.Logger), nil
	default:
		return nil, fmt.Errorf("unknown extraction backend %q", backend)
	}
}
