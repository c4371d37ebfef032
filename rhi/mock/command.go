package mock

import (
	"fmt"
	"sync"

	"github.com/weqqr/videoland/rhi"
)

// Command buffer states.
const (
	stateRecording = iota
	stateSubmitted
)

// commandBuffer records commands as named ops plus closures executed
// at submit. Recording never returns errors; the first invalid call is
// remembered and surfaced by the submit.
type commandBuffer struct {
	device *Device

	mu       sync.Mutex
	state    int
	ops      []string
	execList []func() error
	err      error

	inPass        bool
	boundPipeline *pipeline
	boundVertex   *buffer
	boundIndex    *buffer
	pushData      [rhi.PushConstantSize]byte
}

func newCommandBuffer(d *Device) *commandBuffer {
	return &commandBuffer{device: d, state: stateRecording}
}

// checkRecordingLocked verifies the buffer is still recording and
// remembers the violation otherwise. Callers must hold cb.mu.
func (cb *commandBuffer) checkRecordingLocked(op string) bool {
	if cb.state != stateRecording {
		cb.setErrLocked(fmt.Errorf("%w: %s recorded after submit", rhi.ErrRecordingFailed, op))
		return false
	}
	return true
}

// setErrLocked keeps the first recording error. Callers must hold
// cb.mu.
func (cb *commandBuffer) setErrLocked(err error) {
	if cb.err == nil {
		cb.err = err
	}
}

// finish closes recording and returns any recording error.
func (cb *commandBuffer) finish() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != stateRecording {
		return fmt.Errorf("%w: command buffer already submitted", rhi.ErrRecordingFailed)
	}
	if cb.inPass {
		cb.setErrLocked(fmt.Errorf("%w: rendering scope still open at submit", rhi.ErrRecordingFailed))
	}
	cb.state = stateSubmitted
	return cb.err
}

// execute runs the recorded closures in order.
func (cb *commandBuffer) execute() error {
	cb.mu.Lock()
	execList := cb.execList
	cb.mu.Unlock()

	for _, fn := range execList {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

// Ops returns the names of the recorded commands in order. Tests use
// it to assert recording sequences.
func (cb *commandBuffer) Ops() []string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	out := make([]string, len(cb.ops))
	copy(out, cb.ops)
	return out
}

// PushConstantData returns a copy of the push-constant block.
func (cb *commandBuffer) PushConstantData() []byte {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	out := make([]byte, len(cb.pushData))
	copy(out, cb.pushData[:])
	return out
}

func (cb *commandBuffer) TextureBarrier(tex rhi.Texture, oldLayout, newLayout rhi.TextureLayout) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if !cb.checkRecordingLocked("texture_barrier") {
		return
	}
	mt, ok := tex.(*texture)
	if !ok {
		cb.setErrLocked(fmt.Errorf("%w: texture from another backend", rhi.ErrRecordingFailed))
		return
	}
	cb.ops = append(cb.ops, "texture_barrier")
	cb.execList = append(cb.execList, func() error {
		return mt.transition(oldLayout, newLayout)
	})
}

func (cb *commandBuffer) BeginRendering(desc rhi.RenderPassDesc) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if !cb.checkRecordingLocked("begin_rendering") {
		return
	}
	if cb.inPass {
		cb.setErrLocked(fmt.Errorf("%w: rendering scope already open", rhi.ErrRecordingFailed))
		return
	}
	if desc.ColorTarget == nil {
		cb.setErrLocked(fmt.Errorf("%w: rendering needs a color target", rhi.ErrRecordingFailed))
		return
	}
	cb.inPass = true
	cb.ops = append(cb.ops, "begin_rendering")
}

func (cb *commandBuffer) EndRendering() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if !cb.checkRecordingLocked("end_rendering") {
		return
	}
	if !cb.inPass {
		cb.setErrLocked(fmt.Errorf("%w: no rendering scope to end", rhi.ErrRecordingFailed))
		return
	}
	cb.inPass = false
	cb.ops = append(cb.ops, "end_rendering")
}

func (cb *commandBuffer) SetViewport(extent rhi.Extent2D) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if !cb.checkRecordingLocked("set_viewport") {
		return
	}
	cb.ops = append(cb.ops, "set_viewport")
}

func (cb *commandBuffer) BindPipeline(p rhi.Pipeline) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if !cb.checkRecordingLocked("bind_pipeline") {
		return
	}
	mp, ok := p.(*pipeline)
	if !ok {
		cb.setErrLocked(fmt.Errorf("%w: pipeline from another backend", rhi.ErrRecordingFailed))
		return
	}
	cb.boundPipeline = mp
	cb.ops = append(cb.ops, "bind_pipeline")
}

func (cb *commandBuffer) BindVertexBuffer(b rhi.Buffer) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if !cb.checkRecordingLocked("bind_vertex_buffer") {
		return
	}
	mb, ok := b.(*buffer)
	if !ok {
		cb.setErrLocked(fmt.Errorf("%w: buffer from another backend", rhi.ErrRecordingFailed))
		return
	}
	if mb.usage&rhi.BufferUsageVertex == 0 {
		cb.setErrLocked(fmt.Errorf("%w: buffer lacks vertex usage", rhi.ErrRecordingFailed))
		return
	}
	cb.boundVertex = mb
	cb.ops = append(cb.ops, "bind_vertex_buffer")
}

func (cb *commandBuffer) BindIndexBuffer(b rhi.Buffer, format rhi.IndexFormat) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if !cb.checkRecordingLocked("bind_index_buffer") {
		return
	}
	mb, ok := b.(*buffer)
	if !ok {
		cb.setErrLocked(fmt.Errorf("%w: buffer from another backend", rhi.ErrRecordingFailed))
		return
	}
	if mb.usage&rhi.BufferUsageIndex == 0 {
		cb.setErrLocked(fmt.Errorf("%w: buffer lacks index usage", rhi.ErrRecordingFailed))
		return
	}
	cb.boundIndex = mb
	cb.ops = append(cb.ops, "bind_index_buffer")
}

func (cb *commandBuffer) SetPushConstants(offset uint32, data []byte) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if !cb.checkRecordingLocked("push_constants") {
		return
	}
	if int(offset)+len(data) > rhi.PushConstantSize {
		cb.setErrLocked(fmt.Errorf("%w: push constants of %d bytes at offset %d exceed the %d byte block",
			rhi.ErrRecordingFailed, len(data), offset, rhi.PushConstantSize))
		return
	}
	copy(cb.pushData[offset:], data)
	cb.ops = append(cb.ops, "push_constants")
}

func (cb *commandBuffer) Draw(vertexCount, firstVertex uint32) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if !cb.checkRecordingLocked("draw") {
		return
	}
	if !cb.inPass {
		cb.setErrLocked(fmt.Errorf("%w: draw outside a rendering scope", rhi.ErrRecordingFailed))
		return
	}
	if cb.boundPipeline == nil {
		cb.setErrLocked(fmt.Errorf("%w: draw without a bound pipeline", rhi.ErrRecordingFailed))
		return
	}
	cb.ops = append(cb.ops, "draw")
}

func (cb *commandBuffer) DrawIndexed(indexCount, firstIndex uint32) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if !cb.checkRecordingLocked("draw_indexed") {
		return
	}
	if !cb.inPass {
		cb.setErrLocked(fmt.Errorf("%w: draw outside a rendering scope", rhi.ErrRecordingFailed))
		return
	}
	if cb.boundPipeline == nil {
		cb.setErrLocked(fmt.Errorf("%w: draw without a bound pipeline", rhi.ErrRecordingFailed))
		return
	}
	if cb.boundIndex == nil {
		cb.setErrLocked(fmt.Errorf("%w: indexed draw without an index buffer", rhi.ErrRecordingFailed))
		return
	}
	cb.ops = append(cb.ops, "draw_indexed")
}

func (cb *commandBuffer) CopyBufferToBuffer(src rhi.Buffer, srcOffset int64, dst rhi.Buffer, dstOffset int64, size int64) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if !cb.checkRecordingLocked("copy_buffer_to_buffer") {
		return
	}
	if cb.inPass {
		cb.setErrLocked(fmt.Errorf("%w: copy inside a rendering scope", rhi.ErrRecordingFailed))
		return
	}
	sb, ok := src.(*buffer)
	if !ok {
		cb.setErrLocked(fmt.Errorf("%w: buffer from another backend", rhi.ErrRecordingFailed))
		return
	}
	db, ok := dst.(*buffer)
	if !ok {
		cb.setErrLocked(fmt.Errorf("%w: buffer from another backend", rhi.ErrRecordingFailed))
		return
	}
	cb.ops = append(cb.ops, "copy_buffer_to_buffer")
	cb.execList = append(cb.execList, func() error {
		return sb.copyTo(db, srcOffset, dstOffset, size)
	})
}

func (cb *commandBuffer) CopyBufferToTexture(src rhi.Buffer, dst rhi.Texture) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if !cb.checkRecordingLocked("copy_buffer_to_texture") {
		return
	}
	if cb.inPass {
		cb.setErrLocked(fmt.Errorf("%w: copy inside a rendering scope", rhi.ErrRecordingFailed))
		return
	}
	sb, ok := src.(*buffer)
	if !ok {
		cb.setErrLocked(fmt.Errorf("%w: buffer from another backend", rhi.ErrRecordingFailed))
		return
	}
	dt, ok := dst.(*texture)
	if !ok {
		cb.setErrLocked(fmt.Errorf("%w: texture from another backend", rhi.ErrRecordingFailed))
		return
	}
	cb.ops = append(cb.ops, "copy_buffer_to_texture")
	cb.execList = append(cb.execList, func() error {
		return dt.copyFrom(sb)
	})
}
