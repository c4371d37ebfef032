//go:build vulkan

package vulkan

import (
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/weqqr/videoland"
	"github.com/weqqr/videoland/rhi"
)

type shaderModule struct {
	device *Device
	handle vk.ShaderModule

	mu        sync.Mutex
	destroyed bool
}

type pipeline struct {
	device *Device
	handle vk.Pipeline

	mu        sync.Mutex
	destroyed bool
}

// renderPassKey identifies a cached render pass by its attachment
// formats. depth is FormatUndefined when the pass has no depth
// attachment.
type renderPassKey struct {
	color vk.Format
	depth vk.Format
}

// CreateShaderModule loads SPIR-V bytecode into the device.
func (d *Device) CreateShaderModule(desc rhi.ShaderModuleDesc) (rhi.ShaderModule, error) {
	if len(desc.SPIRV) == 0 || len(desc.SPIRV)%4 != 0 {
		return nil, fmt.Errorf("%w: shader %q bytecode length %d is not a SPIR-V word multiple",
			rhi.ErrPipelineCreationFailed, desc.Label, len(desc.SPIRV))
	}

	info := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(desc.SPIRV)),
		PCode:    bytesToBytecode(desc.SPIRV),
	}
	var handle vk.ShaderModule
	if res := vk.CreateShaderModule(d.handle, &info, nil, &handle); res != vk.Success {
		return nil, fmt.Errorf("%w: vkCreateShaderModule: %v", rhi.ErrPipelineCreationFailed, vk.Error(res))
	}
	return &shaderModule{device: d, handle: handle}, nil
}

// CreatePipeline builds a graphics pipeline against the shared layout.
// Entry points are vs_main and fs_main. An unset DepthFormat disables
// depth testing; otherwise the depth test passes on less-or-equal.
func (d *Device) CreatePipeline(desc rhi.PipelineDesc) (rhi.Pipeline, error) {
	vs, ok := desc.VertexShader.(*shaderModule)
	if !ok {
		return nil, fmt.Errorf("%w: pipeline %q has no vertex shader", rhi.ErrPipelineCreationFailed, desc.Label)
	}
	fs, ok := desc.FragmentShader.(*shaderModule)
	if !ok {
		return nil, fmt.Errorf("%w: pipeline %q has no fragment shader", rhi.ErrPipelineCreationFailed, desc.Label)
	}

	colorFormat, err := mapFormat(desc.ColorFormat)
	if err != nil {
		return nil, err
	}
	depthFormat := vk.FormatUndefined
	if desc.DepthFormat != rhi.FormatUnknown {
		if depthFormat, err = mapFormat(desc.DepthFormat); err != nil {
			return nil, err
		}
	}

	renderPass, err := d.getRenderPass(renderPassKey{color: colorFormat, depth: depthFormat})
	if err != nil {
		return nil, err
	}

	stages := []vk.PipelineShaderStageCreateInfo{
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageVertexBit,
			Module: vs.handle,
			PName:  safeString("vs_main"),
		},
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFragmentBit,
			Module: fs.handle,
			PName:  safeString("fs_main"),
		},
	}

	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	if desc.VertexLayout.Stride > 0 {
		bindings := []vk.VertexInputBindingDescription{{
			Binding:   0,
			Stride:    desc.VertexLayout.Stride,
			InputRate: vk.VertexInputRateVertex,
		}}
		attributes := make([]vk.VertexInputAttributeDescription, len(desc.VertexLayout.Attributes))
		for i, attr := range desc.VertexLayout.Attributes {
			attributes[i] = vk.VertexInputAttributeDescription{
				Location: attr.Location,
				Binding:  0,
				Format:   mapVertexFormat(attr.Format),
				Offset:   attr.Offset,
			}
		}
		vertexInput.VertexBindingDescriptionCount = uint32(len(bindings))
		vertexInput.PVertexBindingDescriptions = bindings
		vertexInput.VertexAttributeDescriptionCount = uint32(len(attributes))
		vertexInput.PVertexAttributeDescriptions = attributes
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}

	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		CullMode:                vk.CullModeFlags(vk.CullModeNone),
		FrontFace:               vk.FrontFaceClockwise,
		DepthBiasEnable:         vk.False,
		LineWidth:               1.0,
	}

	multisample := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
		SampleShadingEnable:  vk.False,
		MinSampleShading:     1.0,
	}

	blendAttachment := vk.PipelineColorBlendAttachmentState{
		BlendEnable:         vk.True,
		SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
		DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		ColorBlendOp:        vk.BlendOpAdd,
		SrcAlphaBlendFactor: vk.BlendFactorOne,
		DstAlphaBlendFactor: vk.BlendFactorZero,
		AlphaBlendOp:        vk.BlendOpAdd,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit |
			vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit),
	}

	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{blendAttachment},
	}

	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: 2,
		PDynamicStates:    []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor},
	}

	info := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisample,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamicState,
		Layout:              d.pipelineLayout,
		RenderPass:          renderPass,
		Subpass:             0,
		BasePipelineHandle:  vk.Pipeline(vk.NullHandle),
		BasePipelineIndex:   -1,
	}
	if depthFormat != vk.FormatUndefined {
		info.PDepthStencilState = &vk.PipelineDepthStencilStateCreateInfo{
			SType:                 vk.StructureTypePipelineDepthStencilStateCreateInfo,
			DepthTestEnable:       vk.True,
			DepthWriteEnable:      vk.True,
			DepthCompareOp:        vk.CompareOpLessOrEqual,
			DepthBoundsTestEnable: vk.False,
			StencilTestEnable:     vk.False,
		}
	}

	pipelines := make([]vk.Pipeline, 1)
	res := vk.CreateGraphicsPipelines(d.handle, vk.PipelineCache(vk.NullHandle),
		1, []vk.GraphicsPipelineCreateInfo{info}, nil, pipelines)
	if res != vk.Success {
		return nil, fmt.Errorf("%w: vkCreateGraphicsPipelines: %v", rhi.ErrPipelineCreationFailed, vk.Error(res))
	}

	videoland.Logger().Debug("pipeline created", "label", desc.Label)
	return &pipeline{device: d, handle: pipelines[0]}, nil
}

// getRenderPass returns the cached render pass for the given
// attachment formats, creating it on first use. Attachments load
// cleared and stay in the general layout on both ends, matching the
// frame transitions recorded around them.
func (d *Device) getRenderPass(key renderPassKey) (vk.RenderPass, error) {
	d.renderPassMu.Lock()
	defer d.renderPassMu.Unlock()

	if pass, ok := d.renderPasses[key]; ok {
		return pass, nil
	}

	pass, err := createRenderPass(d.handle, key)
	if err != nil {
		return vk.RenderPass(vk.NullHandle), err
	}
	d.renderPasses[key] = pass
	return pass, nil
}

func createRenderPass(device vk.Device, key renderPassKey) (vk.RenderPass, error) {
	attachments := []vk.AttachmentDescription{{
		Format:         key.color,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutGeneral,
		FinalLayout:    vk.ImageLayoutGeneral,
	}}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments: []vk.AttachmentReference{{
			Attachment: 0,
			Layout:     vk.ImageLayoutGeneral,
		}},
	}

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
	}

	if key.depth != vk.FormatUndefined {
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         key.depth,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutGeneral,
			FinalLayout:    vk.ImageLayoutGeneral,
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: 1,
			Layout:     vk.ImageLayoutGeneral,
		}
		dependency.SrcStageMask |= vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit)
		dependency.DstStageMask |= vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit)
		dependency.DstAccessMask |= vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit)
	}

	info := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	var pass vk.RenderPass
	if res := vk.CreateRenderPass(device, &info, nil, &pass); res != vk.Success {
		return vk.RenderPass(vk.NullHandle), fmt.Errorf("%w: vkCreateRenderPass: %v", rhi.ErrPipelineCreationFailed, vk.Error(res))
	}
	return pass, nil
}

func (m *shaderModule) Destroy() {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	m.destroyed = true
	m.mu.Unlock()

	d := m.device
	handle := m.handle
	d.deferRelease(func() {
		vk.DestroyShaderModule(d.handle, handle, nil)
	})
}

func (p *pipeline) Destroy() {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}
	p.destroyed = true
	p.mu.Unlock()

	d := p.device
	handle := p.handle
	d.deferRelease(func() {
		vk.DestroyPipeline(d.handle, handle, nil)
	})
}

// bytesToBytecode repacks little-endian SPIR-V bytes into the words
// the driver consumes.
func bytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}
	return byteCode
}

func mapVertexFormat(format rhi.VertexFormat) vk.Format {
	switch format {
	case rhi.VertexFormatFloat32x2:
		return vk.FormatR32g32Sfloat
	case rhi.VertexFormatFloat32x3:
		return vk.FormatR32g32b32Sfloat
	case rhi.VertexFormatFloat32x4:
		return vk.FormatR32g32b32a32Sfloat
	default:
		return vk.FormatUndefined
	}
}
