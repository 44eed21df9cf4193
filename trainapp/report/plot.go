package report

import (
	"errors"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// History 그래프로 그릴 epoch 별 값
type History struct {
	Accuracy           []float32
	ValidationAccuracy []float32
	Loss               []float32
	ValidationLoss     []float32
}

func points(values []float32) plotter.XYs {
	xys := make(plotter.XYs, len(values))
	for i, v := range values {
		xys[i].X = float64(i)
		xys[i].Y = float64(v)
	}
	return xys
}

func linePlot(title, ylabel string, train, validation []float32) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Epoch"
	p.Y.Label.Text = ylabel
	p.Legend.Top = true
	p.Legend.Left = true

	if err := plotutil.AddLines(p, "Train", points(train), "Validation", points(validation)); err != nil {
		return nil, err
	}
	return p, nil
}

// PlotHistory 정확도, 손실 그래프를 좌우로 그려 png 로 저장
func PlotHistory(h History, file string) error {
	if len(h.Accuracy) == 0 {
		return errors.New("Empty history")
	}

	accuracy, err := linePlot("Model Accuracy", "Accuracy", h.Accuracy, h.ValidationAccuracy)
	if err != nil {
		return err
	}
	loss, err := linePlot("Model Loss", "Loss", h.Loss, h.ValidationLoss)
	if err != nil {
		return err
	}

	img := vgimg.New(15*vg.Inch, 5*vg.Inch)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows:      1,
		Cols:      2,
		PadX:      vg.Millimeter * 5,
		PadY:      vg.Millimeter * 5,
		PadTop:    vg.Millimeter * 2,
		PadBottom: vg.Millimeter * 2,
		PadLeft:   vg.Millimeter * 2,
		PadRight:  vg.Millimeter * 2,
	}

	plots := [][]*plot.Plot{{accuracy, loss}}
	canvases := plot.Align(plots, tiles, dc)
	for j, p := range plots[0] {
		p.Draw(canvases[0][j])
	}

	f, err := os.Create(file)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		return err
	}
	return f.Close()
}
