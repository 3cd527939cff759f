package vulkan

import "sync"

// disposeQueues holds one pending-destroy list per resource kind,
// guarded by a single mutex, per spec §4.10/§5. QueueDestroy* appends;
// sweep runs after every Submit and every Wait.
type disposeQueues struct {
	mu sync.Mutex

	buffers           []*Buffer
	textures          []*Texture
	samplers          []*Sampler
	shaderModules     []*ShaderModule
	graphicsPipelines []*GraphicsPipeline
	computePipelines  []*ComputePipeline
	renderTargets     []*RenderTarget
}

func (q *disposeQueues) queueBuffer(b *Buffer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.buffers = append(q.buffers, b)
}

func (q *disposeQueues) queueTexture(t *Texture) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.textures = append(q.textures, t)
}

func (q *disposeQueues) queueSampler(s *Sampler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.samplers = append(q.samplers, s)
}

func (q *disposeQueues) queueShaderModule(m *ShaderModule) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.shaderModules = append(q.shaderModules, m)
}

func (q *disposeQueues) queueGraphicsPipeline(p *GraphicsPipeline) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.graphicsPipelines = append(q.graphicsPipelines, p)
}

func (q *disposeQueues) queueComputePipeline(p *ComputePipeline) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.computePipelines = append(q.computePipelines, p)
}

func (q *disposeQueues) queueRenderTarget(rt *RenderTarget) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.renderTargets = append(q.renderTargets, rt)
}

// sweep drops every entry whose refcount has reached zero, freeing its
// Vk object and, for suballocated resources, returning its memory
// region. Entries still referenced survive for the next sweep.
func (d *Device) sweepDisposeQueues() {
	q := &d.dispose
	q.mu.Lock()
	defer q.mu.Unlock()

	live := q.buffers[:0]
	for _, b := range q.buffers {
		if b.RefCount() == 0 {
			d.destroyBufferNow(b)
		} else {
			live = append(live, b)
		}
	}
	q.buffers = live

	liveT := q.textures[:0]
	for _, t := range q.textures {
		if t.RefCount() == 0 {
			d.destroyTextureNow(t)
		} else {
			liveT = append(liveT, t)
		}
	}
	q.textures = liveT

	liveS := q.samplers[:0]
	for _, s := range q.samplers {
		if s.RefCount() == 0 {
			d.destroySamplerNow(s)
		} else {
			liveS = append(liveS, s)
		}
	}
	q.samplers = liveS

	liveM := q.shaderModules[:0]
	for _, m := range q.shaderModules {
		if m.RefCount() == 0 {
			d.destroyShaderModuleNow(m)
		} else {
			liveM = append(liveM, m)
		}
	}
	q.shaderModules = liveM

	liveGP := q.graphicsPipelines[:0]
	for _, p := range q.graphicsPipelines {
		if p.RefCount() == 0 {
			d.destroyGraphicsPipelineNow(p)
		} else {
			liveGP = append(liveGP, p)
		}
	}
	q.graphicsPipelines = liveGP

	liveCP := q.computePipelines[:0]
	for _, p := range q.computePipelines {
		if p.RefCount() == 0 {
			d.destroyComputePipelineNow(p)
		} else {
			liveCP = append(liveCP, p)
		}
	}
	q.computePipelines = liveCP

	liveRT := q.renderTargets[:0]
	for _, rt := range q.renderTargets {
		if rt.RefCount() == 0 {
			d.destroyRenderTargetNow(rt)
		} else {
			liveRT = append(liveRT, rt)
		}
	}
	q.renderTargets = liveRT
}
