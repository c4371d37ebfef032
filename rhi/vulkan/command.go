//go:build vulkan

// Copyright 2026 The videoland Authors
// SPDX-License-Identifier: BSD-3-Clause

package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/weqqr/videoland/rhi"
)

// commandBuffer records into a pooled Vulkan command buffer. Frame
// buffers come from the per-slot ring; immediate buffers are allocated
// per use. Recording does not validate against device state; the first
// recording failure is latched and reported at submit.
type commandBuffer struct {
	device *Device
	handle vk.CommandBuffer

	// frame is nil for immediate buffers.
	frame *rhi.Frame
	err   error
}

// BeginCommandBuffer starts recording the frame slot's command buffer
// and transitions the acquired image into the general layout.
func (d *Device) BeginCommandBuffer(frame *rhi.Frame) (rhi.CommandBuffer, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, rhi.ErrContextClosed
	}
	if frame == nil {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: nil frame", rhi.ErrRecordingFailed)
	}
	view, ok := frame.View.(*textureView)
	if !ok || view.generation != d.swapchain.currentGeneration() {
		d.mu.Unlock()
		return nil, rhi.ErrSwapchainOutOfDate
	}

	d.frameIndex++
	slot := &d.frames[d.frameIndex%rhi.FrameLatency]
	handle := slot.commandBuffer
	lastSubmission := slot.lastSubmission
	d.mu.Unlock()

	// The slot's buffer may still be executing FrameLatency frames
	// back; its submission must retire before the reset.
	if lastSubmission > 0 {
		if err := d.WaitUntil(lastSubmission, 0); err != nil {
			return nil, err
		}
	}

	if res := vk.ResetCommandBuffer(handle, 0); res != vk.Success {
		return nil, fmt.Errorf("%w: vkResetCommandBuffer: %v", rhi.ErrRecordingFailed, vk.Error(res))
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vk.BeginCommandBuffer(handle, &beginInfo); res != vk.Success {
		return nil, fmt.Errorf("%w: vkBeginCommandBuffer: %v", rhi.ErrRecordingFailed, vk.Error(res))
	}

	recordImageBarrier(handle, view.image, vk.ImageAspectFlags(vk.ImageAspectColorBit),
		vk.ImageLayoutUndefined, vk.ImageLayoutGeneral)

	return &commandBuffer{device: d, handle: handle, frame: frame}, nil
}

// SubmitFrame transitions the frame's image to the presentable layout,
// closes the buffer, submits it, and queues the present. The submit
// waits on the frame's acquire semaphore and signals its render
// semaphore for the present to consume.
func (d *Device) SubmitFrame(cb rhi.CommandBuffer, frame *rhi.Frame) (rhi.SubmissionID, error) {
	vcb, ok := cb.(*commandBuffer)
	if !ok || vcb.device != d {
		return 0, fmt.Errorf("%w: command buffer from another device", rhi.ErrRecordingFailed)
	}
	if frame == nil {
		return 0, fmt.Errorf("%w: nil frame", rhi.ErrRecordingFailed)
	}
	view, ok := frame.View.(*textureView)
	if !ok || view.generation != d.swapchain.currentGeneration() {
		return 0, rhi.ErrSwapchainOutOfDate
	}
	if vcb.err != nil {
		return 0, fmt.Errorf("%w: %v", rhi.ErrRecordingFailed, vcb.err)
	}

	recordImageBarrier(vcb.handle, view.image, vk.ImageAspectFlags(vk.ImageAspectColorBit),
		vk.ImageLayoutGeneral, vk.ImageLayoutPresentSrc)

	if res := vk.EndCommandBuffer(vcb.handle); res != vk.Success {
		return 0, fmt.Errorf("%w: vkEndCommandBuffer: %v", rhi.ErrRecordingFailed, vk.Error(res))
	}

	acquireSem, renderSem := d.swapchain.frameSync(frame.Index)
	id, err := d.submit(vcb.handle,
		[]vk.Semaphore{acquireSem},
		[]vk.Semaphore{renderSem},
		[]vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)})
	if err != nil {
		return 0, err
	}

	d.mu.Lock()
	d.frames[d.frameIndex%rhi.FrameLatency].lastSubmission = id
	d.mu.Unlock()

	if err := d.swapchain.present(frame.Index); err != nil {
		// The work was submitted; hand the ID back alongside the
		// presentation failure so waits still line up.
		return id, err
	}
	return id, nil
}

// ImmediateBuffer starts recording a one-off command buffer outside
// the frame loop.
func (d *Device) ImmediateBuffer() (rhi.CommandBuffer, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, rhi.ErrContextClosed
	}
	d.mu.Unlock()

	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.commandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	handles := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(d.handle, &allocInfo, handles); res != vk.Success {
		return nil, fmt.Errorf("%w: vkAllocateCommandBuffers: %v", rhi.ErrRecordingFailed, vk.Error(res))
	}

	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vk.BeginCommandBuffer(handles[0], &beginInfo); res != vk.Success {
		vk.FreeCommandBuffers(d.handle, d.commandPool, 1, handles)
		return nil, fmt.Errorf("%w: vkBeginCommandBuffer: %v", rhi.ErrRecordingFailed, vk.Error(res))
	}
	return &commandBuffer{device: d, handle: handles[0]}, nil
}

// SubmitImmediate submits a one-off buffer, waits for it to retire,
// and frees it. The work is complete when the call returns.
func (d *Device) SubmitImmediate(cb rhi.CommandBuffer) (rhi.SubmissionID, error) {
	vcb, ok := cb.(*commandBuffer)
	if !ok || vcb.device != d {
		return 0, fmt.Errorf("%w: command buffer from another device", rhi.ErrRecordingFailed)
	}
	if vcb.frame != nil {
		return 0, fmt.Errorf("%w: frame buffer submitted as immediate", rhi.ErrRecordingFailed)
	}
	if vcb.err != nil {
		return 0, fmt.Errorf("%w: %v", rhi.ErrRecordingFailed, vcb.err)
	}

	if res := vk.EndCommandBuffer(vcb.handle); res != vk.Success {
		return 0, fmt.Errorf("%w: vkEndCommandBuffer: %v", rhi.ErrRecordingFailed, vk.Error(res))
	}

	id, err := d.submit(vcb.handle, nil, nil, nil)
	if err != nil {
		return 0, err
	}
	if err := d.WaitUntil(id, 0); err != nil {
		return id, err
	}

	vk.FreeCommandBuffers(d.handle, d.commandPool, 1, []vk.CommandBuffer{vcb.handle})
	return id, nil
}

// TextureBarrier transitions texture between layouts. Frame images
// need no barriers; BeginCommandBuffer and SubmitFrame handle them.
func (c *commandBuffer) TextureBarrier(tex rhi.Texture, oldLayout, newLayout rhi.TextureLayout) {
	if c.err != nil {
		return
	}
	t, ok := tex.(*texture)
	if !ok {
		c.err = fmt.Errorf("texture from another backend")
		return
	}
	recordImageBarrier(c.handle, t.handle, aspectFor(t.format), mapLayout(oldLayout), mapLayout(newLayout))
}

// BeginRendering starts a render pass over the described attachments.
// The pass object is cached by attachment formats; the framebuffer is
// transient and queued for deferred release right away.
func (c *commandBuffer) BeginRendering(desc rhi.RenderPassDesc) {
	if c.err != nil {
		return
	}
	colorView, ok := desc.ColorTarget.(*textureView)
	if !ok {
		c.err = fmt.Errorf("render pass needs a color target")
		return
	}

	key := renderPassKey{color: colorView.vkFormat}
	attachments := []vk.ImageView{colorView.handle}

	var depthView *textureView
	if desc.DepthTarget != nil {
		if depthView, ok = desc.DepthTarget.(*textureView); !ok {
			c.err = fmt.Errorf("depth target from another backend")
			return
		}
		key.depth = depthView.vkFormat
		attachments = append(attachments, depthView.handle)
	}

	renderPass, err := c.device.getRenderPass(key)
	if err != nil {
		c.err = err
		return
	}

	fbInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderPass,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           desc.Extent.Width,
		Height:          desc.Extent.Height,
		Layers:          1,
	}
	var framebuffer vk.Framebuffer
	if res := vk.CreateFramebuffer(c.device.handle, &fbInfo, nil, &framebuffer); res != vk.Success {
		c.err = fmt.Errorf("vkCreateFramebuffer: %v", vk.Error(res))
		return
	}
	d := c.device
	d.deferRelease(func() {
		vk.DestroyFramebuffer(d.handle, framebuffer, nil)
	})

	clearValues := make([]vk.ClearValue, 1, 2)
	clearValues[0].SetColor([]float32{
		desc.ClearColor.R, desc.ClearColor.G, desc.ClearColor.B, desc.ClearColor.A,
	})
	if depthView != nil {
		var depthClear vk.ClearValue
		depthClear.SetDepthStencil(desc.ClearDepth, 0)
		clearValues = append(clearValues, depthClear)
	}

	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  renderPass,
		Framebuffer: framebuffer,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{Width: desc.Extent.Width, Height: desc.Extent.Height},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(c.handle, &beginInfo, vk.SubpassContentsInline)
}

func (c *commandBuffer) EndRendering() {
	if c.err != nil {
		return
	}
	vk.CmdEndRenderPass(c.handle)
}

// SetViewport sets both the viewport and the scissor to cover extent.
func (c *commandBuffer) SetViewport(extent rhi.Extent2D) {
	if c.err != nil {
		return
	}
	viewport := vk.Viewport{
		X:        0,
		Y:        0,
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}
	vk.CmdSetViewport(c.handle, 0, 1, []vk.Viewport{viewport})

	scissor := vk.Rect2D{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: vk.Extent2D{Width: extent.Width, Height: extent.Height},
	}
	vk.CmdSetScissor(c.handle, 0, 1, []vk.Rect2D{scissor})
}

func (c *commandBuffer) BindPipeline(p rhi.Pipeline) {
	if c.err != nil {
		return
	}
	vp, ok := p.(*pipeline)
	if !ok {
		c.err = fmt.Errorf("pipeline from another backend")
		return
	}
	vk.CmdBindPipeline(c.handle, vk.PipelineBindPointGraphics, vp.handle)
}

func (c *commandBuffer) BindVertexBuffer(buf rhi.Buffer) {
	if c.err != nil {
		return
	}
	vb, ok := buf.(*buffer)
	if !ok {
		c.err = fmt.Errorf("vertex buffer from another backend")
		return
	}
	vk.CmdBindVertexBuffers(c.handle, 0, 1, []vk.Buffer{vb.handle}, []vk.DeviceSize{0})
}

func (c *commandBuffer) BindIndexBuffer(buf rhi.Buffer, format rhi.IndexFormat) {
	if c.err != nil {
		return
	}
	vb, ok := buf.(*buffer)
	if !ok {
		c.err = fmt.Errorf("index buffer from another backend")
		return
	}
	indexType := vk.IndexTypeUint16
	if format == rhi.IndexFormatUint32 {
		indexType = vk.IndexTypeUint32
	}
	vk.CmdBindIndexBuffer(c.handle, vb.handle, 0, indexType)
}

// SetPushConstants writes data into the shared push-constant block.
// The block is visible to both shader stages, so the write does not
// depend on which pipeline is bound.
func (c *commandBuffer) SetPushConstants(offset uint32, data []byte) {
	if c.err != nil || len(data) == 0 {
		return
	}
	vk.CmdPushConstants(c.handle, c.device.pipelineLayout,
		vk.ShaderStageFlags(vk.ShaderStageVertexBit|vk.ShaderStageFragmentBit),
		offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (c *commandBuffer) Draw(vertexCount, firstVertex uint32) {
	if c.err != nil {
		return
	}
	vk.CmdDraw(c.handle, vertexCount, 1, firstVertex, 0)
}

func (c *commandBuffer) DrawIndexed(indexCount, firstIndex uint32) {
	if c.err != nil {
		return
	}
	vk.CmdDrawIndexed(c.handle, indexCount, 1, firstIndex, 0, 0)
}

func (c *commandBuffer) CopyBufferToBuffer(src rhi.Buffer, srcOffset int64, dst rhi.Buffer, dstOffset int64, size int64) {
	if c.err != nil {
		return
	}
	sb, ok := src.(*buffer)
	if !ok {
		c.err = fmt.Errorf("copy source from another backend")
		return
	}
	db, ok := dst.(*buffer)
	if !ok {
		c.err = fmt.Errorf("copy destination from another backend")
		return
	}
	region := vk.BufferCopy{
		SrcOffset: vk.DeviceSize(srcOffset),
		DstOffset: vk.DeviceSize(dstOffset),
		Size:      vk.DeviceSize(size),
	}
	vk.CmdCopyBuffer(c.handle, sb.handle, db.handle, 1, []vk.BufferCopy{region})
}

// CopyBufferToTexture copies tightly packed pixels covering the whole
// texture. The texture must be in the transfer-dst layout.
func (c *commandBuffer) CopyBufferToTexture(src rhi.Buffer, dst rhi.Texture) {
	if c.err != nil {
		return
	}
	sb, ok := src.(*buffer)
	if !ok {
		c.err = fmt.Errorf("copy source from another backend")
		return
	}
	dt, ok := dst.(*texture)
	if !ok {
		c.err = fmt.Errorf("copy destination from another backend")
		return
	}
	region := vk.BufferImageCopy{
		BufferOffset:      0,
		BufferRowLength:   0,
		BufferImageHeight: 0,
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     aspectFor(dt.format),
			MipLevel:       0,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
		ImageOffset: vk.Offset3D{X: 0, Y: 0, Z: 0},
		ImageExtent: vk.Extent3D{
			Width:  dt.extent.Width,
			Height: dt.extent.Height,
			Depth:  1,
		},
	}
	vk.CmdCopyBufferToImage(c.handle, sb.handle, dt.handle,
		vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})
}

// recordImageBarrier transitions image between layouts, with stage and
// access scopes derived from each side's layout.
func recordImageBarrier(cb vk.CommandBuffer, image vk.Image, aspect vk.ImageAspectFlags, oldLayout, newLayout vk.ImageLayout) {
	srcStage, srcAccess := layoutSync(oldLayout)
	dstStage, dstAccess := layoutSync(newLayout)

	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       srcAccess,
		DstAccessMask:       dstAccess,
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               image,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}

	vk.CmdPipelineBarrier(cb, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

// layoutSync returns the pipeline stage and access scope tied to a
// layout, splitting a transition into its source and destination
// halves.
func layoutSync(layout vk.ImageLayout) (vk.PipelineStageFlags, vk.AccessFlags) {
	switch layout {
	case vk.ImageLayoutUndefined:
		return vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), 0
	case vk.ImageLayoutColorAttachmentOptimal:
		return vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
			vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit)
	case vk.ImageLayoutDepthStencilAttachmentOptimal:
		return vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit),
			vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit)
	case vk.ImageLayoutTransferSrcOptimal:
		return vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			vk.AccessFlags(vk.AccessTransferReadBit)
	case vk.ImageLayoutTransferDstOptimal:
		return vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			vk.AccessFlags(vk.AccessTransferWriteBit)
	case vk.ImageLayoutShaderReadOnlyOptimal:
		return vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
			vk.AccessFlags(vk.AccessShaderReadBit)
	case vk.ImageLayoutPresentSrc:
		return vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
			vk.AccessFlags(vk.AccessMemoryReadBit)
	default:
		return vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
			vk.AccessFlags(vk.AccessMemoryReadBit | vk.AccessMemoryWriteBit)
	}
}
