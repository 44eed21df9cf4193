package data

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harrison-roh/leaf-disease-detection/serveapp/data/db"
)

const (
	imageTable      string = "image_tab"
	predictionTable string = "prediction_tab"
	driverName      string = "mysql"
)

// ErrNoFilter 조건 없는 삭제 요청
var ErrNoFilter = errors.New("No filter: set `label`, `filename`, `orgfilename` or `all`")

// Config 데이터 관리 설정정보
type Config struct {
	ConnInfo   string
	ImagesPath string
}

// Manager 학습 이미지와 추론 기록을 관리.
// 이미지는 학습 앱이 읽는 <ImagesPath>/<label>/<file> 구조로 저장
type Manager struct {
	Conn       *db.DBconn
	imagesPath string
}

// SaveFunc 업로드 된 파일을 dst 에 저장
type SaveFunc func(*multipart.FileHeader, string) error

func saveImage(file *multipart.FileHeader, dst string) error {
	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, src)

	return err
}

func checkLabel(label string) error {
	if label == "" {
		return errors.New("Empty `label`")
	}
	if label == "." || label == ".." || strings.ContainsAny(label, `/\`) {
		return fmt.Errorf("Invalid `label`: %s", label)
	}
	return nil
}

// SaveImages image 저장
func (dm *Manager) SaveImages(label string, images []*multipart.FileHeader, f SaveFunc, verbose bool) (map[string]interface{}, error) {
	if err := checkLabel(label); err != nil {
		return nil, err
	}

	fileDir := path.Join(dm.imagesPath, label)
	if err := os.MkdirAll(fileDir, os.ModePerm); err != nil {
		return nil, err
	}

	if f == nil {
		f = saveImage
	}

	var (
		total      int64
		successful int64
		failed     int64
		items      []db.Item
		errs       []map[string]interface{}
	)
	for _, image := range images {
		total++

		orgFileName := filepath.Base(image.Filename)
		fileName := fmt.Sprintf("%s-%s", uuid.New().String()[:8], orgFileName)
		fileFormat := strings.ToLower(strings.TrimPrefix(filepath.Ext(orgFileName), "."))
		filePath := path.Join(fileDir, fileName)

		item := db.Item{
			Label:       label,
			OrgFilename: orgFileName,
			Filename:    fileName,
			FileFormat:  fileFormat,
			FilePath:    filePath,
			CreateAt:    time.Now(),
		}

		if err := dm.Conn.InsertImage(item); err != nil {
			if verbose {
				errs = append(errs, map[string]interface{}{
					"orgfilename": orgFileName,
					"filename":    fileName,
					"error":       err.Error(),
				})
			}

			failed++
			continue
		}

		if err := f(image, filePath); err != nil {
			if verbose {
				errs = append(errs, map[string]interface{}{
					"orgfilename": orgFileName,
					"filename":    fileName,
					"error":       err.Error(),
				})
			}

			if _, err := dm.Conn.DeleteImages(db.Item{Label: label, Filename: fileName}); err != nil {
				slog.Error("Image record rollback failed", "filename", fileName, "error", err)
			}

			failed++
			continue
		}

		if verbose {
			items = append(items, item)
		}
		successful++
	}

	result := map[string]interface{}{
		"infos": map[string]int64{
			"total":      total,
			"successful": successful,
			"failed":     failed,
		},
	}

	if verbose {
		result["images"] = items
		result["errors"] = errs
	}

	return result, nil
}

// DeleteImages image 삭제. 조건이 없으면 all 일 때만 전체 삭제
func (dm *Manager) DeleteImages(label, fileName, orgFileName string, all, verbose bool) (map[string]interface{}, error) {
	if label == "" && fileName == "" && orgFileName == "" && !all {
		return nil, ErrNoFilter
	}

	param := db.Item{
		Label:       label,
		Filename:    fileName,
		OrgFilename: orgFileName,
	}

	items, err := dm.Conn.GetImages(param)
	if err != nil {
		return nil, err
	}

	errs := make([]map[string]interface{}, 0)
	// 빈 디렉토리를 삭제하기 위해 label 목록을 저장
	labels := make(map[string]int)
	for _, item := range items {
		if err := os.Remove(item.FilePath); err != nil && !os.IsNotExist(err) {
			if verbose {
				errs = append(errs, map[string]interface{}{
					"orgfilename": item.OrgFilename,
					"filename":    item.Filename,
					"error":       err.Error(),
				})
			}
			continue
		}
		labels[item.Label]++
	}

	deleted, err := dm.Conn.DeleteImages(param)
	if err != nil {
		return nil, err
	}

	for label := range labels {
		// "directory not empty" 에러는 무시
		os.Remove(path.Join(dm.imagesPath, label))
	}

	result := map[string]interface{}{
		"infos": map[string]int64{
			"total":      int64(len(items)),
			"successful": deleted,
			"failed":     int64(len(items)) - deleted,
		},
	}

	if verbose {
		result["images"] = items
		result["errors"] = errs
	}

	return result, nil
}

// ListImages image 목록 반환
func (dm *Manager) ListImages(label string) (map[string]interface{}, error) {
	items, err := dm.Conn.GetImages(db.Item{Label: label})
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, item := range items {
		counts[item.Label]++
	}

	return map[string]interface{}{
		"infos":  counts,
		"images": items,
	}, nil
}

// RecordPrediction 최상위 추론 결과 기록
func (dm *Manager) RecordPrediction(fileName, label string, confidence float64) (string, error) {
	id := uuid.New().String()

	err := dm.Conn.InsertPrediction(db.Prediction{
		ID:         id,
		Filename:   filepath.Base(fileName),
		Label:      label,
		Confidence: confidence,
		CreateAt:   time.Now(),
	})
	if err != nil {
		return "", err
	}

	return id, nil
}

// ListPredictions 최근 추론 기록 반환
func (dm *Manager) ListPredictions(limit int) ([]db.Prediction, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("Invalid limit: %d", limit)
	}

	return dm.Conn.GetPredictions(limit)
}

// Destroy Data manager 해제
func (dm *Manager) Destroy() {
	if err := dm.Conn.Destroy(); err != nil {
		slog.Error("DB close failed", "error", err)
	} else {
		slog.Info("DB successfully closed")
	}
}

// New 새로운 Data manager 생성
func New(c Config) (*Manager, error) {
	conn, err := db.New(db.Config{
		DriverName:      driverName,
		ConnInfo:        c.ConnInfo,
		ImageTable:      imageTable,
		PredictionTable: predictionTable,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("DB successfully initialized", "tables", []string{imageTable, predictionTable})

	return NewWithConn(conn, c.ImagesPath), nil
}

// NewWithConn 열린 connection 으로 Data manager 생성
func NewWithConn(conn *db.DBconn, imagesPath string) *Manager {
	return &Manager{
		Conn:       conn,
		imagesPath: imagesPath,
	}
}
