package gpu

import (
	"fmt"
	"strings"
)

// VertexSource is the pass-through vertex stage shared by both programs.
const VertexSource = `#version 100
attribute vec4 a_position;
attribute vec2 a_texcoord;
varying vec2 v_texcoord;
void main() {
  gl_Position = a_position;
  v_texcoord = a_texcoord;
}
`

// FragmentSource samples foreground and background from separate textures.
const FragmentSource = `#version 100
#ifdef GL_ES
precision mediump float;
#endif
varying vec2 v_texcoord;
uniform sampler2D foreground;
uniform sampler2D background;
uniform float threshold;
uniform float smoothness;
uniform float spill;
` + keyBody + `
void main() {
  gl_FragColor = keyPixel(texture2D(foreground, v_texcoord), texture2D(background, v_texcoord));
}
`

// keyBody is shared by both fragment programs. smoothstep is undefined for
// equal edges, so the upper edge is kept strictly above the lower one.
const keyBody = `
vec4 keyPixel(vec4 fg, vec4 bg) {
  float greenness = fg.g - max(fg.r, fg.b);
  float lo = threshold - smoothness;
  float hi = max(threshold + smoothness, lo + 0.0001);
  float keyMask = smoothstep(lo, hi, greenness);
  vec3 color = fg.rgb;
  if (keyMask < 1.0) {
    float spillAmount = max(0.0, greenness - spill);
    color.r = mix(color.r, color.r + spillAmount * 0.5, spill);
    color.b = mix(color.b, color.b + spillAmount * 0.5, spill);
  }
  vec3 outColor = mix(bg.rgb, color, 1.0 - keyMask);
  return vec4(clamp(outColor, 0.0, 1.0), 1.0 - keyMask);
}
`

// PackedFragmentSource is the program used by pipeline backends that can
// bind a single input texture. The texture holds the foreground in its left
// half and the background in its right half; the right half of the output is
// discarded by the caller. The parameters are uniforms, so changing settings
// never rebuilds the program.
const PackedFragmentSource = `#version 100
#ifdef GL_ES
precision mediump float;
#endif
varying vec2 v_texcoord;
uniform sampler2D tex;
uniform float threshold;
uniform float smoothness;
uniform float spill;
` + keyBody + `
void main() {
  vec2 fgCoord = vec2(min(v_texcoord.x, 0.5), v_texcoord.y);
  vec2 bgCoord = vec2(fgCoord.x + 0.5, v_texcoord.y);
  gl_FragColor = keyPixel(texture2D(tex, fgCoord), texture2D(tex, bgCoord));
}
`

// UniformStructure serializes u in GstStructure string form, as accepted by
// the glshader "uniforms" property.
func UniformStructure(u Uniforms) string {
	return fmt.Sprintf("uniforms, threshold=(float)%s, smoothness=(float)%s, spill=(float)%s",
		glslFloat(u.Threshold), glslFloat(u.Smoothness), glslFloat(u.Spill))
}

// glslFloat formats v with a decimal point so it parses as a float literal.
func glslFloat(v float32) string {
	s := fmt.Sprintf("%.6f", v)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
