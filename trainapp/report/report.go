package report

import (
	"fmt"
	"io/ioutil"
	"strings"
)

// ConfusionMatrix [실제][예측] 개수
func ConfusionMatrix(yTrue, yPred []int, nrClasses int) ([][]int, error) {
	if len(yTrue) != len(yPred) {
		return nil, fmt.Errorf("Mismatched length: %d != %d", len(yTrue), len(yPred))
	}

	cm := make([][]int, nrClasses)
	for i := range cm {
		cm[i] = make([]int, nrClasses)
	}
	for i := range yTrue {
		t, p := yTrue[i], yPred[i]
		if t < 0 || t >= nrClasses || p < 0 || p >= nrClasses {
			return nil, fmt.Errorf("Invalid class at %d: true %d, predicted %d", i, t, p)
		}
		cm[t][p]++
	}

	return cm, nil
}

// ClassMetrics class 하나의 지표
type ClassMetrics struct {
	Name      string
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// Classification class 별 precision/recall/F1 과 평균
type Classification struct {
	Classes     []ClassMetrics
	Accuracy    float64
	MacroAvg    ClassMetrics
	WeightedAvg ClassMetrics
	Total       int
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

// Classify confusion matrix 로 지표 계산. 분모가 0 이면 0
func Classify(cm [][]int, names []string) (*Classification, error) {
	if len(cm) != len(names) {
		return nil, fmt.Errorf("Mismatched number of classes: %d != %d", len(cm), len(names))
	}

	r := &Classification{}
	correct := 0
	for i := range cm {
		support, predicted := 0, 0
		for j := range cm {
			support += cm[i][j]
			predicted += cm[j][i]
		}
		correct += cm[i][i]
		r.Total += support

		m := ClassMetrics{
			Name:      names[i],
			Precision: ratio(cm[i][i], predicted),
			Recall:    ratio(cm[i][i], support),
			Support:   support,
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		r.Classes = append(r.Classes, m)
	}
	r.Accuracy = ratio(correct, r.Total)

	r.MacroAvg = ClassMetrics{Name: "macro avg", Support: r.Total}
	r.WeightedAvg = ClassMetrics{Name: "weighted avg", Support: r.Total}
	for _, m := range r.Classes {
		r.MacroAvg.Precision += m.Precision
		r.MacroAvg.Recall += m.Recall
		r.MacroAvg.F1 += m.F1

		w := ratio(m.Support, r.Total)
		r.WeightedAvg.Precision += m.Precision * w
		r.WeightedAvg.Recall += m.Recall * w
		r.WeightedAvg.F1 += m.F1 * w
	}
	if n := float64(len(r.Classes)); n > 0 {
		r.MacroAvg.Precision /= n
		r.MacroAvg.Recall /= n
		r.MacroAvg.F1 /= n
	}

	return r, nil
}

// String sklearn classification_report 형식
func (r *Classification) String() string {
	width := len(r.WeightedAvg.Name)
	for _, m := range r.Classes {
		if len(m.Name) > width {
			width = len(m.Name)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%*s  %9s %9s %9s %9s\n\n", width, "", "precision", "recall", "f1-score", "support")

	row := func(m ClassMetrics) {
		fmt.Fprintf(&b, "%*s  %9.2f %9.2f %9.2f %9d\n", width, m.Name, m.Precision, m.Recall, m.F1, m.Support)
	}
	for _, m := range r.Classes {
		row(m)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%*s  %9s %9s %9.2f %9d\n", width, "accuracy", "", "", r.Accuracy, r.Total)
	row(r.MacroAvg)
	row(r.WeightedAvg)

	return b.String()
}

// FormatMatrix 행은 실제, 열은 예측
func FormatMatrix(cm [][]int) string {
	width := 1
	for _, row := range cm {
		for _, v := range row {
			if w := len(fmt.Sprint(v)); w > width {
				width = w
			}
		}
	}

	var b strings.Builder
	for _, row := range cm {
		b.WriteString("[")
		for j, v := range row {
			if j > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "%*d", width, v)
		}
		b.WriteString("]\n")
	}
	return b.String()
}

// Save 평가 결과와 confusion matrix, report 를 파일로 저장
func Save(file string, loss, accuracy float32, cm [][]int, r *Classification) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Validation Loss: %.4f\n", loss)
	fmt.Fprintf(&b, "Validation Accuracy: %.4f\n\n", accuracy)
	b.WriteString("Confusion Matrix:\n")
	b.WriteString(FormatMatrix(cm))
	b.WriteString("\nClassification Report:\n")
	b.WriteString(r.String())

	return ioutil.WriteFile(file, []byte(b.String()), 0644)
}
