package software

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/rm-hull/gpu-filter-graph/internal/gpu"
)

type status int

const (
	statusRecording status = iota
	statusCommitted
	statusCompleted
)

// CommandBuffer records dispatches and executes them in order once committed.
type CommandBuffer struct {
	device *Device

	mu       sync.Mutex
	status   status
	encoding bool
	commands []*dispatch
	err      error
	done     chan struct{}
}

type dispatch struct {
	label           string
	pipeline        *pipelineState
	textures        map[int]*Texture
	buffers         map[int]buffer
	threadgroups    gpu.Size
	threadsPerGroup gpu.Size
	dispatched      bool
	err             error
}

func (cb *CommandBuffer) ComputeEncoder() (gpu.ComputeEncoder, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err := cb.device.check(); err != nil {
		return nil, err
	}
	if cb.status != statusRecording {
		return nil, gpu.ComputeFailure("command buffer already committed")
	}
	if cb.encoding {
		return nil, gpu.ComputeFailure("previous encoder has not ended encoding")
	}
	cb.encoding = true
	return &computeEncoder{
		cb: cb,
		cmd: &dispatch{
			textures: make(map[int]*Texture),
			buffers:  make(map[int]buffer),
		},
	}, nil
}

// Commit schedules the recorded work. It may only be called once.
func (cb *CommandBuffer) Commit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.status != statusRecording {
		return gpu.ComputeFailure("command buffer already committed")
	}
	if cb.encoding {
		return gpu.ComputeFailure("cannot commit while an encoder is open")
	}
	cb.status = statusCommitted
	commands := cb.commands
	go cb.execute(commands)
	return nil
}

// WaitUntilCompleted blocks until the committed work has finished and
// returns the first error any dispatch produced.
func (cb *CommandBuffer) WaitUntilCompleted() error {
	cb.mu.Lock()
	if cb.status == statusRecording {
		cb.mu.Unlock()
		return gpu.ComputeFailure("command buffer was never committed")
	}
	cb.mu.Unlock()

	<-cb.done

	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.err
}

func (cb *CommandBuffer) execute(commands []*dispatch) {
	var err error
	for _, cmd := range commands {
		if err = cb.device.check(); err != nil {
			break
		}
		if err = cb.device.run(cmd); err != nil {
			err = gpu.ComputeFailure("dispatch %q (%s) failed: %w", cmd.label, cmd.pipeline.function, err)
			break
		}
	}

	cb.mu.Lock()
	cb.status = statusCompleted
	cb.err = err
	cb.mu.Unlock()
	close(cb.done)
}

func (cb *CommandBuffer) append(cmd *dispatch) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.encoding = false
	if cmd != nil {
		cb.commands = append(cb.commands, cmd)
	}
}

type computeEncoder struct {
	cb    *CommandBuffer
	cmd   *dispatch
	ended bool
	err   error
}

func (e *computeEncoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *computeEncoder) SetLabel(label string) {
	e.cmd.label = label
}

func (e *computeEncoder) SetPipelineState(p gpu.PipelineState) {
	ps, ok := p.(*pipelineState)
	if !ok || ps == nil {
		e.fail(fmt.Errorf("pipeline state %v does not belong to the software device", p))
		return
	}
	e.cmd.pipeline = ps
}

func (e *computeEncoder) SetTexture(t gpu.Texture, index int) {
	tex, err := asTexture(t)
	if err != nil {
		e.fail(err)
		return
	}
	e.cmd.textures[index] = tex
}

func (e *computeEncoder) SetBuffer(b gpu.Buffer, index int) {
	buf, ok := b.(buffer)
	if !ok {
		e.fail(fmt.Errorf("buffer %v does not belong to the software device", b))
		return
	}
	e.cmd.buffers[index] = buf
}

func (e *computeEncoder) Dispatch(threadgroups, threadsPerGroup gpu.Size) {
	if e.cmd.dispatched {
		e.fail(errors.New("encoder already dispatched"))
		return
	}
	e.cmd.threadgroups = threadgroups
	e.cmd.threadsPerGroup = threadsPerGroup
	e.cmd.dispatched = true
}

func (e *computeEncoder) EndEncoding() error {
	if e.ended {
		return gpu.ComputeFailure("encoder already ended")
	}
	e.ended = true

	if e.err == nil && e.cmd.dispatched && e.cmd.pipeline == nil {
		e.fail(errors.New("dispatch without pipeline state"))
	}
	if e.err != nil {
		e.cb.append(nil)
		return gpu.ComputeFailure("failed to encode %q: %w", e.cmd.label, e.err)
	}
	if !e.cmd.dispatched {
		e.cb.append(nil)
		return nil
	}
	e.cb.append(e.cmd)
	return nil
}

// Invocation is what a kernel sees of a dispatch.
type Invocation struct {
	Label           string
	Threadgroups    gpu.Size
	ThreadsPerGroup gpu.Size

	device   *Device
	textures map[int]*Texture
	buffers  map[int]buffer
}

// Texture returns the texture bound at index.
func (inv *Invocation) Texture(index int) (*Texture, error) {
	t, ok := inv.textures[index]
	if !ok {
		return nil, fmt.Errorf("no texture bound at index %d", index)
	}
	return t, nil
}

// Float32s decodes the buffer at index as little endian float32 values.
// A missing buffer yields an empty slice.
func (inv *Invocation) Float32s(index int) ([]float32, error) {
	b, ok := inv.buffers[index]
	if !ok {
		return nil, nil
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("buffer %d has %d bytes, not a whole number of float32s", index, len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, nil
}

// Covers reports whether the dispatch grid reaches every texel of t.
func (inv *Invocation) Covers(t *Texture) bool {
	w := inv.Threadgroups.Width * inv.ThreadsPerGroup.Width
	h := inv.Threadgroups.Height * inv.ThreadsPerGroup.Height
	return w >= t.Width() && h >= t.Height()
}

// Rows runs fn for every row in [0, height) on the device's worker pool.
func (inv *Invocation) Rows(height int, fn func(y int) error) error {
	return parallelRows(inv.device.workers, height, fn)
}

func (d *Device) run(cmd *dispatch) error {
	inv := &Invocation{
		Label:           cmd.label,
		Threadgroups:    cmd.threadgroups,
		ThreadsPerGroup: cmd.threadsPerGroup,
		device:          d,
		textures:        cmd.textures,
		buffers:         cmd.buffers,
	}
	d.dispatches.Add(1)
	d.logger.Debug("dispatch",
		"label", cmd.label,
		"function", cmd.pipeline.function,
		"threadgroups", cmd.threadgroups)
	return cmd.pipeline.kernel(inv)
}
