package snapshot

// collectScript is the single scripted query the observer runs inside
// the page, as required by the contract in the spec's Page Observer
// design: one DOM pass producing every raw fact the Go side needs to
// assemble a PageSnapshot. It queries the main document only (iframe
// documents and shadow roots are not traversed), collecting form/input/
// button/error/captcha/overlay facts instead of a flat interactive-
// element list.
const collectScript = `() => {
	function isVisible(el) {
		if (!el) return false;
		const style = window.getComputedStyle(el);
		if (style.display === "none" || style.visibility === "hidden" || parseFloat(style.opacity || "1") === 0) return false;
		const rect = el.getBoundingClientRect();
		return rect.width > 0 && rect.height > 0;
	}

	function wrappedInVisibleLabel(el) {
		let p = el.parentElement;
		for (let i = 0; i < 4 && p; i++) {
			if (p.tagName === "LABEL" && isVisible(p)) return true;
			p = p.parentElement;
		}
		const id = el.getAttribute("id");
		if (id) {
			const lbl = document.querySelector('label[for="' + CSS.escape(id) + '"]');
			if (lbl && isVisible(lbl)) return true;
		}
		return false;
	}

	function labelText(el) {
		const id = el.getAttribute("id");
		if (id) {
			const lbl = document.querySelector('label[for="' + CSS.escape(id) + '"]');
			if (lbl) return (lbl.innerText || lbl.textContent || "").trim().slice(0, 120);
		}
		let p = el.parentElement;
		for (let i = 0; i < 3 && p; i++) {
			if (p.tagName === "LABEL") return (p.innerText || p.textContent || "").trim().slice(0, 120);
			p = p.parentElement;
		}
		return "";
	}

	function bboxOf(el) {
		const r = el.getBoundingClientRect();
		return [Math.round(r.x), Math.round(r.y), Math.round(r.width), Math.round(r.height)];
	}

	function ancestorFormIndex(el, forms) {
		let p = el.closest ? el.closest("form") : null;
		if (!p) return -1;
		return forms.indexOf(p);
	}

	const forms = Array.from(document.querySelectorAll("form"));
	const formsOut = forms.map((f, i) => ({
		index: i,
		id: f.getAttribute("id") || "",
		action: f.getAttribute("action") || "",
		method: (f.getAttribute("method") || "get").toLowerCase(),
	}));

	const inputEls = Array.from(document.querySelectorAll(
		"input, select, textarea, [role='checkbox'], [role='radio']"
	));
	const inputsOut = inputEls.map(el => {
		const tag = el.tagName.toLowerCase();
		const type = (el.getAttribute("type") || (tag === "select" ? "select" : tag === "textarea" ? "text" : "text")).toLowerCase();
		const visible = isVisible(el);
		const hiddenSR = !visible && wrappedInVisibleLabel(el);
		let checked = false;
		if (tag === "input" && (type === "checkbox" || type === "radio")) {
			checked = !!el.checked;
		} else if (el.getAttribute("aria-checked") === "true") {
			checked = true;
		}
		return {
			tag, type,
			id: el.getAttribute("id") || "",
			name: el.getAttribute("name") || "",
			placeholder: el.getAttribute("placeholder") || "",
			ariaLabel: el.getAttribute("aria-label") || "",
			label: labelText(el),
			visible, hiddenSR,
			wrappedInLabel: wrappedInVisibleLabel(el),
			checked,
			formIndex: ancestorFormIndex(el, forms),
			bbox: bboxOf(el),
		};
	}).filter(e => e.visible || e.hiddenSR);

	const buttonEls = Array.from(document.querySelectorAll(
		"button, input[type='submit'], input[type='button'], a[role='button'], [role='button']"
	));
	const buttonsOut = buttonEls.filter(isVisible).map(el => {
		const tag = el.tagName.toLowerCase();
		const type = (el.getAttribute("type") || "").toLowerCase();
		const text = (el.innerText || el.value || el.getAttribute("aria-label") || "").trim().slice(0, 120);
		return {
			tag, type, text,
			id: el.getAttribute("id") || "",
			name: el.getAttribute("name") || "",
			isSubmitType: type === "submit",
			formIndex: ancestorFormIndex(el, forms),
			bbox: bboxOf(el),
			className: el.getAttribute("class") || "",
		};
	});

	const errorSelectors = [".error", ".field-error", "[role='alert']", ".invalid-feedback", ".error-message", ".form-error"];
	const errorsOut = [];
	for (const sel of errorSelectors) {
		for (const el of document.querySelectorAll(sel)) {
			if (!isVisible(el)) continue;
			const t = (el.innerText || el.textContent || "").trim();
			if (t) errorsOut.push(t.slice(0, 100));
			if (errorsOut.length >= 5) break;
		}
		if (errorsOut.length >= 5) break;
	}

	const captchaSelectors = [
		{ sel: "iframe[src*='recaptcha']", kind: "recaptcha_v2" },
		{ sel: "iframe[title*='recaptcha challenge']", kind: "recaptcha_challenge" },
		{ sel: "iframe[src*='hcaptcha']", kind: "hcaptcha" },
		{ sel: "iframe[src*='turnstile']", kind: "turnstile" },
		{ sel: ".g-recaptcha", kind: "recaptcha_v2" },
		{ sel: ".h-captcha", kind: "hcaptcha" },
		{ sel: ".cf-turnstile", kind: "turnstile" },
	];
	let captchaOut = { present: false, visible: false, kind: "none", sitekey: "" };
	for (const c of captchaSelectors) {
		const el = document.querySelector(c.sel);
		if (el) {
			captchaOut = {
				present: true,
				visible: isVisible(el),
				kind: c.kind,
				sitekey: el.getAttribute("data-sitekey") || "",
			};
			break;
		}
	}

	const overlaySelectors = [".modal.show", ".modal[style*='display: block']", "[role='dialog']", ".overlay.active", ".popup.visible"];
	let overlayOut = { present: false, text: "", hasIframe: false, iframeSrc: "", closeSelector: "" };
	for (const sel of overlaySelectors) {
		const el = document.querySelector(sel);
		if (el && isVisible(el)) {
			const iframe = el.querySelector("iframe");
			const closeBtn = el.querySelector("[aria-label='Close'], .close, .modal-close, button.close");
			overlayOut = {
				present: true,
				text: (el.innerText || el.textContent || "").trim().slice(0, 500),
				hasIframe: !!iframe,
				iframeSrc: iframe ? (iframe.getAttribute("src") || "") : "",
				closeSelector: closeBtn ? (closeBtn.getAttribute("id") ? "#" + closeBtn.getAttribute("id") : "") : "",
			};
			break;
		}
	}

	const bodyText = (document.body ? (document.body.innerText || "") : "").slice(0, 3000);

	const articleOut = {
		articleCount: document.querySelectorAll("article").length,
		hasPostContentClass: !!document.querySelector(".post-content, .entry-content, .article-content, .article-body"),
		hasByline: !!document.querySelector(".byline, .author, [rel='author'], .post-author"),
		hasCommentSection: !!document.querySelector("#comments, .comments, .comment-section, [id*='disqus']"),
		hasDateNode: !!document.querySelector("time, .post-date, .published, [itemprop='datePublished']"),
	};

	const oauthOut = !!document.querySelector(
		"[class*='google-login'], [class*='oauth'], [href*='oauth'], button[class*='facebook'], [class*='sign-in-with']"
	);

	// countrySignals gathers the phone-widget/country hints §4.3 asks
	// for from anywhere in the form, not just the phone input's own
	// label/placeholder: intl-tel-input-style widget classes, flag
	// emoji, country data-* attributes, and bare "+NN" dial-code tokens.
	const countrySignals = [];
	const widgetEls = document.querySelectorAll(
		"[class*='iti'], [class*='intl-tel'], [class*='country-select'], [class*='country-code'], [class*='phone-country']"
	);
	for (const el of widgetEls) {
		const cls = el.getAttribute("class") || "";
		if (cls) countrySignals.push(cls.slice(0, 80));
		if (countrySignals.length >= 20) break;
	}
	const countryDataEls = document.querySelectorAll(
		"[data-country], [data-country-code], [data-dial-code], [data-iso2]"
	);
	for (const el of countryDataEls) {
		for (const attr of ["data-country", "data-country-code", "data-dial-code", "data-iso2"]) {
			const v = el.getAttribute(attr);
			if (v) countrySignals.push(attr + ":" + v);
		}
		if (countrySignals.length >= 20) break;
	}
	const formText = forms.map(f => (f.innerText || f.textContent || "")).join(" ");
	const dialCodeMatches = formText.match(/\+\d{1,3}\b/g) || [];
	for (const m of dialCodeMatches.slice(0, 5)) countrySignals.push(m);
	const flagMatches = formText.match(/[\u{1F1E6}-\u{1F1FF}]{2}/gu) || [];
	for (const m of flagMatches.slice(0, 5)) countrySignals.push(m);

	return {
		url: location.href,
		title: document.title || "",
		bodyText,
		forms: formsOut,
		inputs: inputsOut,
		buttons: buttonsOut,
		errors: errorsOut,
		captcha: captchaOut,
		overlay: overlayOut,
		article: articleOut,
		oauth: oauthOut,
		countrySignals,
	};
}`

// simplifiedHTMLScript clones visible forms (or, failing that, bare
// fillable elements) into a detached container, strips script/style
// and hidden-honeypot nodes, and returns the result capped at 5000
// chars, ported from llm_analyzer.py's simplifiedHtml extraction.
const simplifiedHTMLScript = `() => {
	function isVisible(el) {
		if (!el) return false;
		const style = window.getComputedStyle(el);
		if (style.display === "none" || style.visibility === "hidden" || parseFloat(style.opacity || "1") === 0) return false;
		const rect = el.getBoundingClientRect();
		return rect.width > 0 && rect.height > 0;
	}

	const cleanHtml = document.createElement("div");

	document.querySelectorAll("form").forEach(form => {
		if (!isVisible(form)) return;
		const clone = form.cloneNode(true);
		clone.querySelectorAll("script, style, noscript").forEach(el => el.remove());
		clone.querySelectorAll("[style*='display: none'], [style*='display:none'], [hidden], .hidden, .d-none, .sr-only, .visually-hidden").forEach(el => el.remove());
		cleanHtml.appendChild(clone);
	});

	if (cleanHtml.children.length === 0) {
		const container = document.createElement("div");
		document.querySelectorAll("input:not([type='hidden']), textarea, select, button").forEach(el => {
			if (isVisible(el)) container.appendChild(el.cloneNode(true));
		});
		cleanHtml.appendChild(container);
	}

	return cleanHtml.innerHTML.slice(0, 5000);
}`
