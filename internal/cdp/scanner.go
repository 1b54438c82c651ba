package cdp

// clickScannerScript is injected into every document. It attaches a
// capture-phase click listener to the document and to every reachable
// shadow root and same-origin iframe, watches for new roots with a
// MutationObserver, and reports a click descriptor through a console
// sentinel. The descriptor's element path is resolved here; the core
// treats it as trusted input.
const clickScannerScript = `
(() => {
    let lastExecutionTime = 0;
    const debounceInterval = 300;

    const getSelector = (el) => {
        if (!el || !el.tagName) return '';
        let selector = el.tagName.toLowerCase();
        if (el.id) selector += '#' + el.id.trim();
        if (el.className && typeof el.className === 'string') {
            selector += '.' + el.className.trim().split(/\s+/).join('.');
        }
        return selector;
    };

    const extractInnerContent = (startNode) => {
        const findings = [];
        const nodesToVisit = [startNode];
        let count = 0;
        while (nodesToVisit.length > 0 && findings.length < 5 && count < 10) {
            const node = nodesToVisit.shift();
            count++;
            if (!node) continue;
            const tagName = (node.tagName || '').toLowerCase();
            if (tagName === 'a' && node.href) {
                findings.push({ type: 'link', href: node.href, text: (node.innerText || '').trim().slice(0, 150) });
            }
            if (node.children) {
                nodesToVisit.push(...node.children);
            }
        }
        return findings;
    };

    const clickHandler = (event) => {
        if (!event.isTrusted) return;
        const currentTime = performance.now();
        if (currentTime - lastExecutionTime < debounceInterval) return;
        lastExecutionTime = currentTime;

        const target = event.composedPath()[0] || event.target;
        if (!target) return;

        const result = {};
        try {
            const path = [];
            let current = target;
            for (let i = 0; i < 5 && current && current.parentElement; i++) {
                path.unshift(getSelector(current));
                if (['main', 'section', 'nav'].includes(current.tagName.toLowerCase())) break;
                current = current.parentElement;
            }
            result.element_path = path.join(' > ');
            result.target_text = (target.innerText || '').trim().slice(0, 150);
            result.document_url = (target.ownerDocument || document).location.href;
            result.tag = (target.tagName || '').toLowerCase();
            if (target.href) result.href = target.href;
            if (result.tag === 'input') {
                result.input_type = target.type || '';
                result.input_name = target.name || '';
            }
            if (result.tag === 'button') result.button_type = target.type || '';
            if (result.tag === 'select') result.selected_value = target.value || '';
            if (target.form && target.form.action) result.form_action = target.form.action;

            try {
                result.inner_content = extractInnerContent(target);
            } catch (e) {
                result.inner_content_error = e.message;
            }
        } catch (e) {
            result.error = e.message;
        }

        console.log('__UI_SCANNER_DATA__' + JSON.stringify(result));
    };

    const attachedRoots = new WeakSet();
    const attachScanner = (rootNode) => {
        if (!rootNode || attachedRoots.has(rootNode)) return;
        try {
            rootNode.addEventListener('click', clickHandler, true);
            attachedRoots.add(rootNode);
            const observer = new MutationObserver((mutations) => {
                mutations.forEach(m => m.addedNodes.forEach(n => scanForRoots(n)));
            });
            observer.observe(rootNode, { childList: true, subtree: true });
        } catch (e) {}
    };

    const scanForRoots = (element) => {
        if (!element || element.nodeType !== Node.ELEMENT_NODE) return;
        if (element.shadowRoot) attachScanner(element.shadowRoot);
        if (element.tagName === 'IFRAME') { try { attachScanner(element.contentDocument); } catch (e) {} }
        element.querySelectorAll('*').forEach(child => {
            if (child.shadowRoot) attachScanner(child.shadowRoot);
            if (child.tagName === 'IFRAME') { try { attachScanner(child.contentDocument); } catch (e) {} }
        });
    };

    attachScanner(document);
    if (document.body) scanForRoots(document.body);
})();
`
