package service

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lpr-service/internal/consensus"
	"lpr-service/internal/detect"
	"lpr-service/internal/domain/lpr"
	"lpr-service/internal/recognize"
	"lpr-service/internal/repository"
)

// sliceSource serves n frames; frame i is a solid image whose red channel is i.
type sliceSource struct {
	n      int
	next   int
	closed bool
}

func (s *sliceSource) Read(ctx context.Context) (image.Image, error) {
	if s.next >= s.n {
		return nil, io.EOF
	}
	s.next++
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: uint8(s.next), A: 255})
		}
	}
	return img, nil
}

func (s *sliceSource) Close() error {
	s.closed = true
	return nil
}

// frameOf recovers the frame index painted by sliceSource from any crop.
func frameOf(img image.Image) int {
	r, _, _, _ := img.At(img.Bounds().Min.X, img.Bounds().Min.Y).RGBA()
	return int(r >> 8)
}

type recordingDispatcher struct {
	calls []lpr.ConsensusResult
	ref   string
	err   error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, result lpr.ConsensusResult) (string, error) {
	d.calls = append(d.calls, result)
	return d.ref, d.err
}

type memoryScans struct {
	reports []*lpr.ScanReport
}

func (m *memoryScans) Create(ctx context.Context, report *lpr.ScanReport) error {
	m.reports = append(m.reports, report)
	return nil
}

func (m *memoryScans) Get(ctx context.Context, id uuid.UUID) (*repository.PlateScan, error) {
	return nil, errors.New("not implemented")
}

func (m *memoryScans) List(ctx context.Context, limit, offset int) ([]repository.PlateScan, error) {
	return nil, nil
}

func oneBox(conf float64) detect.DetectorFunc {
	return func(ctx context.Context, img image.Image) ([]lpr.Detection, error) {
		return []lpr.Detection{{Box: image.Rect(8, 8, 56, 40), Confidence: conf}}, nil
	}
}

// scenario: frames 6 and 12 read "12 가 3456", frame 18 reads "34-나-1234".
func scenarioPipeline(d ResultDispatcher) Pipeline {
	plateConf := map[int]float64{6: 0.5, 12: 0.7, 18: 0.95}
	text := map[int][]lpr.Token{
		6:  {{Text: "12 가"}, {Text: " 3456"}},
		12: {{Text: "12 가 3456"}},
		18: {{Text: "34-나-1234"}},
	}
	return Pipeline{
		Vehicles: oneBox(0.9),
		Plates: detect.DetectorFunc(func(ctx context.Context, img image.Image) ([]lpr.Detection, error) {
			return []lpr.Detection{{Box: image.Rect(4, 4, 30, 20), Confidence: plateConf[frameOf(img)]}}, nil
		}),
		Recognizer: recognize.RecognizerFunc(func(ctx context.Context, img image.Image) ([]lpr.Token, error) {
			return text[frameOf(img)], nil
		}),
		Dispatcher: d,
	}
}

func TestScanEndToEnd(t *testing.T) {
	dispatcher := &recordingDispatcher{ref: "https://cdn/frames/12가3456.jpg"}
	scans := &memoryScans{}
	p := scenarioPipeline(dispatcher)
	p.Scans = scans
	svc := NewScanService(p, zerolog.Nop())

	src := &sliceSource{n: 18}
	report, err := svc.Scan(context.Background(), src, 6)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	if !src.closed {
		t.Error("source was not closed")
	}
	if report.FramesRead != 18 || report.FramesProcessed != 3 || report.Observations != 3 {
		t.Errorf("frames read/processed/observations = %d/%d/%d, want 18/3/3",
			report.FramesRead, report.FramesProcessed, report.Observations)
	}

	wantCandidates := []lpr.Candidate{
		{Plate: "12가3456", Occurrences: 2, BestConfidence: 0.7, MeanConfidence: 0.6, BestFrame: 12, FirstSeen: 6},
		{Plate: "34나1234", Occurrences: 1, BestConfidence: 0.95, MeanConfidence: 0.95, BestFrame: 18, FirstSeen: 18},
	}
	opts := cmp.Options{
		cmpopts.IgnoreFields(lpr.Candidate{}, "Evidence"),
		cmpopts.EquateApprox(0, 1e-9),
	}
	if diff := cmp.Diff(wantCandidates, report.Candidates, opts); diff != "" {
		t.Errorf("candidates mismatch (-want +got):\n%s", diff)
	}

	if report.Result == nil {
		t.Fatal("no consensus result")
	}
	if report.Result.Plate != "12가3456" || report.Result.Evidence.Index != 12 {
		t.Errorf("winner = %s@%d, want 12가3456@12", report.Result.Plate, report.Result.Evidence.Index)
	}
	if report.Result.Confidence != 0.7 {
		t.Errorf("winner confidence = %v, want 0.7", report.Result.Confidence)
	}

	if len(dispatcher.calls) != 1 || dispatcher.calls[0].Plate != "12가3456" {
		t.Fatalf("dispatch calls = %+v", dispatcher.calls)
	}
	if report.Status != lpr.ScanStatusCompleted || !report.Delivered || report.ImageRef != dispatcher.ref {
		t.Errorf("status=%s delivered=%v ref=%q", report.Status, report.Delivered, report.ImageRef)
	}
	if len(scans.reports) != 1 || scans.reports[0] != report {
		t.Errorf("scan not recorded")
	}
}

func TestScanNoPlateSkipsDispatch(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	svc := NewScanService(Pipeline{
		Vehicles: oneBox(0.9),
		Plates:   oneBox(0.8),
		Recognizer: recognize.RecognizerFunc(func(context.Context, image.Image) ([]lpr.Token, error) {
			return []lpr.Token{{Text: "ABC123"}}, nil
		}),
		Dispatcher: dispatcher,
	}, zerolog.Nop())

	report, err := svc.Scan(context.Background(), &sliceSource{n: 12}, 6)
	if !errors.Is(err, consensus.ErrNoPlateDetected) {
		t.Fatalf("Scan() error = %v, want ErrNoPlateDetected", err)
	}
	if report.Status != lpr.ScanStatusNoPlate || report.Result != nil {
		t.Errorf("status=%s result=%v", report.Status, report.Result)
	}
	if len(dispatcher.calls) != 0 {
		t.Errorf("dispatcher called %d times", len(dispatcher.calls))
	}
}

func TestScanDispatchFailureKeepsResult(t *testing.T) {
	dispatcher := &recordingDispatcher{err: errors.New("persistence failure: api returned 500")}
	svc := NewScanService(scenarioPipeline(dispatcher), zerolog.Nop())

	report, err := svc.Scan(context.Background(), &sliceSource{n: 18}, 6)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if report.Result == nil || report.Result.Plate != "12가3456" {
		t.Fatalf("result = %+v", report.Result)
	}
	if report.Delivered || report.DeliveryError == "" {
		t.Errorf("delivered=%v deliveryError=%q", report.Delivered, report.DeliveryError)
	}
	if report.Status != lpr.ScanStatusCompleted {
		t.Errorf("status = %s", report.Status)
	}
}

// failingSource serves frames from sliceSource and fails once it is exhausted.
type failingSource struct {
	sliceSource
	err error
}

func (s *failingSource) Read(ctx context.Context) (image.Image, error) {
	img, err := s.sliceSource.Read(ctx)
	if errors.Is(err, io.EOF) {
		return nil, s.err
	}
	return img, err
}

func TestScanRecordsReadFailure(t *testing.T) {
	scans := &memoryScans{}
	p := scenarioPipeline(&recordingDispatcher{})
	p.Scans = scans
	src := &failingSource{sliceSource: sliceSource{n: 12}, err: errors.New("read frame: unexpected EOF")}

	report, err := NewScanService(p, zerolog.Nop()).Scan(context.Background(), src, 6)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if report.Status != lpr.ScanStatusCompleted || report.Result == nil || report.Result.Plate != "12가3456" {
		t.Fatalf("status=%s result=%+v", report.Status, report.Result)
	}
	if report.ReadError != "read frame: unexpected EOF" {
		t.Errorf("ReadError = %q", report.ReadError)
	}
	if len(scans.reports) != 1 || scans.reports[0].ReadError == "" {
		t.Error("read failure not recorded with the scan")
	}
}

func TestScanCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	scans := &memoryScans{}
	p := scenarioPipeline(&recordingDispatcher{})
	p.Scans = scans
	p.Vehicles = detect.DetectorFunc(func(context.Context, image.Image) ([]lpr.Detection, error) {
		cancel()
		return nil, nil
	})
	src := &sliceSource{n: 18}

	report, err := NewScanService(p, zerolog.Nop()).Scan(ctx, src, 6)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Scan() error = %v, want context.Canceled", err)
	}
	if report.Status != lpr.ScanStatusFailed || !src.closed {
		t.Errorf("status=%s closed=%v", report.Status, src.closed)
	}
	if len(scans.reports) != 1 {
		t.Errorf("recorded %d reports, want 1", len(scans.reports))
	}
}

func TestProcessFrame(t *testing.T) {
	frame := lpr.Frame{Index: 6, Image: image.NewRGBA(image.Rect(0, 0, 100, 100))}
	readPlate := recognize.RecognizerFunc(func(context.Context, image.Image) ([]lpr.Token, error) {
		return []lpr.Token{{Text: "12가3456"}}, nil
	})

	t.Run("zero area crops skip downstream", func(t *testing.T) {
		plateCalls, readCalls := 0, 0
		svc := NewScanService(Pipeline{
			Vehicles: detect.DetectorFunc(func(context.Context, image.Image) ([]lpr.Detection, error) {
				return []lpr.Detection{
					{Box: image.Rect(10, 10, 10, 50), Confidence: 0.9},
					{Box: image.Rect(200, 200, 300, 300), Confidence: 0.9},
					{Box: image.Rect(0, 0, 50, 50), Confidence: 0.9},
				}, nil
			}),
			Plates: detect.DetectorFunc(func(context.Context, image.Image) ([]lpr.Detection, error) {
				plateCalls++
				return []lpr.Detection{{Box: image.Rect(5, 5, 5, 5), Confidence: 0.8}}, nil
			}),
			Recognizer: recognize.RecognizerFunc(func(context.Context, image.Image) ([]lpr.Token, error) {
				readCalls++
				return nil, nil
			}),
		}, zerolog.Nop())

		if got := svc.ProcessFrame(context.Background(), frame); len(got) != 0 {
			t.Errorf("ProcessFrame() = %+v, want none", got)
		}
		if plateCalls != 1 {
			t.Errorf("plate detector calls = %d, want 1", plateCalls)
		}
		if readCalls != 0 {
			t.Errorf("recognizer calls = %d, want 0", readCalls)
		}
	})

	t.Run("every box is processed", func(t *testing.T) {
		svc := NewScanService(Pipeline{
			Vehicles: detect.DetectorFunc(func(context.Context, image.Image) ([]lpr.Detection, error) {
				return []lpr.Detection{
					{Box: image.Rect(0, 0, 50, 50)},
					{Box: image.Rect(50, 50, 100, 100)},
				}, nil
			}),
			Plates: detect.DetectorFunc(func(context.Context, image.Image) ([]lpr.Detection, error) {
				return []lpr.Detection{
					{Box: image.Rect(0, 0, 20, 10), Confidence: 0.4},
					{Box: image.Rect(20, 20, 40, 30), Confidence: 0.6},
				}, nil
			}),
			Recognizer: readPlate,
		}, zerolog.Nop())

		got := svc.ProcessFrame(context.Background(), frame)
		if len(got) != 4 {
			t.Fatalf("ProcessFrame() returned %d observations, want 4", len(got))
		}
		for _, obs := range got {
			if obs.Plate != "12가3456" || obs.Frame.Index != 6 {
				t.Errorf("observation = %+v", obs)
			}
		}
		if got[0].Confidence != 0.4 || got[1].Confidence != 0.6 {
			t.Errorf("confidences = %v, %v; want plate-stage 0.4, 0.6", got[0].Confidence, got[1].Confidence)
		}
	})

	t.Run("plate boxes are relative to the vehicle crop", func(t *testing.T) {
		var plateBounds image.Rectangle
		svc := NewScanService(Pipeline{
			Vehicles: oneBox(0.9),
			Plates:   oneBox(0.8),
			Recognizer: recognize.RecognizerFunc(func(ctx context.Context, img image.Image) ([]lpr.Token, error) {
				plateBounds = img.Bounds()
				return nil, nil
			}),
		}, zerolog.Nop())

		svc.ProcessFrame(context.Background(), frame)
		if want := image.Rect(16, 16, 56, 40); plateBounds != want {
			t.Errorf("plate crop bounds = %v, want %v", plateBounds, want)
		}
	})

	t.Run("capability errors are absorbed", func(t *testing.T) {
		failing := detect.DetectorFunc(func(context.Context, image.Image) ([]lpr.Detection, error) {
			return nil, errors.New("model server down")
		})
		svc := NewScanService(Pipeline{Vehicles: failing, Plates: oneBox(0.8), Recognizer: readPlate}, zerolog.Nop())
		if got := svc.ProcessFrame(context.Background(), frame); got != nil {
			t.Errorf("ProcessFrame() = %+v, want nil", got)
		}

		svc = NewScanService(Pipeline{
			Vehicles: oneBox(0.9),
			Plates:   oneBox(0.8),
			Recognizer: recognize.RecognizerFunc(func(context.Context, image.Image) ([]lpr.Token, error) {
				return nil, errors.New("ocr timeout")
			}),
		}, zerolog.Nop())
		if got := svc.ProcessFrame(context.Background(), frame); len(got) != 0 {
			t.Errorf("ProcessFrame() = %+v, want none", got)
		}
	})

	t.Run("token ordering", func(t *testing.T) {
		shuffled := recognize.RecognizerFunc(func(context.Context, image.Image) ([]lpr.Token, error) {
			return []lpr.Token{
				{Text: "3456", Box: image.Rect(30, 0, 40, 10)},
				{Text: "12가", Box: image.Rect(0, 0, 20, 10)},
			}, nil
		})
		p := Pipeline{Vehicles: oneBox(0.9), Plates: oneBox(0.8), Recognizer: shuffled}

		if got := NewScanService(p, zerolog.Nop()).ProcessFrame(context.Background(), frame); len(got) != 0 {
			t.Errorf("verbatim order should not match, got %+v", got)
		}

		p.SortTokens = true
		got := NewScanService(p, zerolog.Nop()).ProcessFrame(context.Background(), frame)
		if len(got) != 1 || got[0].Plate != "12가3456" {
			t.Errorf("sorted order = %+v, want 12가3456", got)
		}
	})
}
