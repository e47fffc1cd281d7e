package live

import (
	"fmt"
	"math"

	"github.com/yok-tottii/EzClassify/internal/classifier"
)

// Color is the background shown behind the current verdict
type Color string

const (
	White  Color = "white"
	Green  Color = "green"
	Blue   Color = "blue"
	Orange Color = "orange"
)

// DefaultConfidenceThreshold separates a confident verdict from a tentative one
const DefaultConfidenceThreshold = 0.8

// Display is what a front-end shows for the loop
type Display struct {
	Color Color  `json:"color"`
	Label string `json:"label"`
}

// InitialDisplay is shown before the first verdict
func InitialDisplay() Display {
	return Display{Color: White, Label: "Categoria"}
}

func strongColor(class int) Color {
	switch class {
	case 0:
		return Green
	case 1:
		return Blue
	default:
		return Orange
	}
}

// Render maps a verdict to a display. At or above threshold the class gets
// its own colour; below it the background stays white and the label carries
// the truncated percentage.
func Render(result classifier.Result, threshold float64) Display {
	if result.Confidence >= threshold {
		return Display{
			Color: strongColor(result.Class),
			Label: fmt.Sprintf("Classe %d", result.Class),
		}
	}

	percent := int(math.Trunc(result.Confidence * 100))
	return Display{
		Color: White,
		Label: fmt.Sprintf("Classe %d com %d%% de confiança", result.Class, percent),
	}
}

// FailureMessage formats a classification failure for display
func FailureMessage(err error) string {
	return fmt.Sprintf("Erro na classificação: %v", err)
}

// RecordingFailureMessage formats a capture failure for display
func RecordingFailureMessage(err error) string {
	return fmt.Sprintf("Erro na gravação: %v", err)
}
