package buffer

import (
	"context"
	"errors"
	"io"
	"slices"
	"testing"
	"time"
)

func TestRingBuffer_Overwrite(t *testing.T) {
	tests := []struct {
		size    int
		want    []byte
		dropped int64
	}{
		{1, []byte{3}, 2},
		{2, []byte{2, 3}, 1},
		{3, []byte{1, 2, 3}, 0},
		{4, []byte{1, 2, 3}, 0},
	}
	for _, tt := range tests {
		rb := RingN[byte](tt.size)
		if n, err := rb.Write([]byte{1, 2, 3}); err != nil || n != 3 {
			t.Fatalf("size=%d Write() = %d, %v", tt.size, n, err)
		}
		rb.CloseWrite()
		if rb.Len() != len(tt.want) {
			t.Errorf("size=%d Len() = %d", tt.size, rb.Len())
		}
		if rb.Dropped() != tt.dropped {
			t.Errorf("size=%d Dropped() = %d, want %d", tt.size, rb.Dropped(), tt.dropped)
		}
		got := make([]byte, 8)
		n, err := rb.Read(context.Background(), got)
		if err != nil {
			t.Fatalf("size=%d Read() error: %v", tt.size, err)
		}
		if !slices.Equal(got[:n], tt.want) {
			t.Errorf("size=%d got %v, want %v", tt.size, got[:n], tt.want)
		}
		if _, err := rb.Read(context.Background(), got); err != io.EOF {
			t.Errorf("size=%d drained Read() = %v, want EOF", tt.size, err)
		}
	}
}

func TestRingBuffer_OverwriteAcrossWrites(t *testing.T) {
	rb := RingN[int](4)
	rb.Write([]int{1, 2, 3})
	rb.Write([]int{4, 5, 6})
	got := make([]int, 4)
	n, _ := rb.Read(context.Background(), got)
	if !slices.Equal(got[:n], []int{3, 4, 5, 6}) {
		t.Errorf("got %v", got[:n])
	}
}

func TestRingBuffer_ReadBlocksUntilWrite(t *testing.T) {
	rb := RingN[byte](16)
	go func() {
		time.Sleep(10 * time.Millisecond)
		rb.Write([]byte{7, 8})
		time.Sleep(10 * time.Millisecond)
		rb.Write([]byte{9, 10})
	}()
	got := make([]byte, 4)
	if _, err := rb.ReadFull(context.Background(), got); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, []byte{7, 8, 9, 10}) {
		t.Errorf("got %v", got)
	}
}

func TestRingBuffer_ReadContextCancel(t *testing.T) {
	rb := RingN[byte](4)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := rb.Read(ctx, make([]byte, 1))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Read() = %v, want DeadlineExceeded", err)
	}
}

func TestRingBuffer_Close(t *testing.T) {
	rb := RingN[byte](4)
	done := make(chan error, 1)
	go func() {
		_, err := rb.Read(context.Background(), make([]byte, 1))
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	rb.Close()
	select {
	case err := <-done:
		if !errors.Is(err, io.ErrClosedPipe) {
			t.Errorf("Read() = %v, want ErrClosedPipe", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Read did not unblock on Close")
	}
	if _, err := rb.Write([]byte{1}); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("Write() after Close = %v", err)
	}
}

func TestRingBuffer_ReadFullShort(t *testing.T) {
	rb := RingN[byte](4)
	rb.Write([]byte{1})
	rb.CloseWrite()
	n, err := rb.ReadFull(context.Background(), make([]byte, 3))
	if n != 1 || err != io.ErrUnexpectedEOF {
		t.Errorf("ReadFull() = %d, %v", n, err)
	}
}

func TestWindow(t *testing.T) {
	w := WindowN[string](3)
	if len(w.Items()) != 0 {
		t.Fatal("new window should be empty")
	}
	for _, s := range []string{"a", "b"} {
		w.Add(s)
	}
	if got := w.Items(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("Items() = %v", got)
	}
	for _, s := range []string{"c", "d", "e"} {
		w.Add(s)
	}
	if got := w.Items(); !slices.Equal(got, []string{"c", "d", "e"}) {
		t.Errorf("Items() = %v", got)
	}
	if w.Len() != 3 {
		t.Errorf("Len() = %d", w.Len())
	}
}
