package config

// DefaultGeneration returns the stock txt2img defaults and prompt templates.
// The quality and negative prompt strings are tuned for photorealistic
// portrait output and shared by avatar generation and requested images.
func DefaultGeneration() Generation {
	return Generation{
		Width:       512,
		Height:      512,
		Steps:       25,
		AvatarSteps: 20,
		CfgScale:    7.0,
		Sampler:     "DPM++ 2M",
		Scheduler:   "Karras",

		NegativePrompt: "BadDream, UnrealisticDream, watermark, signature, logo, text, " +
			"bad hands, unnatural hands, disfigured hands, extra libs, extra hands, extra legs, unrealistic",

		QualityTags: ", masterpiece, (photorealistic:1.4), best quality, soft lighting, photograph, " +
			"RAW photo, 8k uhd, film grain, (low quality amateur:1.3), (fisheye lens:0.9) (bokeh:0.9), " +
			"slightly blurred, (morning light:0.5), (ambient occlusion:0.6), (realistic shadows), " +
			"portrait photography, (social media style:0.8), (vertical composition), 85mm lens, f/2.8, ISO 400",

		// AvatarTemplate is expanded with the character name and persona.
		AvatarTemplate: "Portrait of %s, %s. photograph of a beautiful, best quality, soft lighting, " +
			"masterpiece, (photorealistic:1.4), Close-up, upper body, high detail, beautiful, " +
			"cinematic lighting, sharp eyes, clean background, studio portrait, RAW photo, 8k uhd, " +
			"film grain, (low quality amateur:1.3), (fisheye lens:0.9) (bokeh:0.9)",

		PrompterSystem: "You are prompter, my AI assistant that helps me creates prompts for stable " +
			"diffusion, removing information not needed and focusing more on the details that can " +
			"create an image, representing both obvious details like hair color, body type, race and " +
			"also adapting the personality into the image, like clothes, face expressions and " +
			"accesories. Focus on the photography angles, styles, composition, trying to prompt a " +
			"photo like use in social media, portrait mode.",

		// PrompterRequest is expanded with the persona and the literal user request.
		PrompterRequest: "Generate a prompt for a stable diffusion realistic image, that defines " +
			"race/etnicity, age, hair color and style, skin tone, body type/build, eye color and any " +
			"other distinctive features. Photo angle should be a close portrait, just like an avatar " +
			"for a social media. Consider the following description: %s %s " +
			"DO NOT RESPOND ANYTHING, OTHER THAN THE PROMPT.",
	}
}
